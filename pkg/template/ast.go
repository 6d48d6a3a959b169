package template

// Body nodes.
type (
	textNode struct {
		text string
	}

	outputNode struct {
		expr expr
	}

	ifBranch struct {
		cond expr
		body []node
	}

	ifNode struct {
		branches []ifBranch
		orElse   []node
	}
)

type node interface{ isNode() }

func (textNode) isNode()   {}
func (outputNode) isNode() {}
func (ifNode) isNode()     {}

// Expression nodes.
type (
	literalExpr struct {
		value interface{} // nil, bool, int64, float64 or string
	}

	nameExpr struct {
		name string
	}

	attrExpr struct {
		obj expr
		key expr
	}

	callExpr struct {
		helper string
		args   []expr
	}

	testExpr struct {
		subject expr
		test    string
		negated bool
	}

	unaryExpr struct {
		op string
		x  expr
	}

	binaryExpr struct {
		op   string
		l, r expr
	}

	notExpr struct {
		x expr
	}

	logicalExpr struct {
		op   string // "and" | "or"
		l, r expr
	}

	condExpr struct {
		cond, then, orElse expr
	}

	listExpr struct {
		items []expr
	}
)

type expr interface{ isExpr() }

func (literalExpr) isExpr() {}
func (nameExpr) isExpr()    {}
func (attrExpr) isExpr()    {}
func (callExpr) isExpr()    {}
func (testExpr) isExpr()    {}
func (unaryExpr) isExpr()   {}
func (binaryExpr) isExpr()  {}
func (notExpr) isExpr()     {}
func (logicalExpr) isExpr() {}
func (condExpr) isExpr()    {}
func (listExpr) isExpr()    {}
