//go:build integration

package channelfilter

import (
	"testing"

	"switchyard/internal/testinfra"
)

func TestPostgresAuditContract(t *testing.T) {
	testAuditContract(t, NewPostgresAuditRepository(testinfra.Postgres(t)))
}

func TestMongoAuditContract(t *testing.T) {
	testAuditContract(t, NewMongoAuditRepository(testinfra.Mongo(t)))
}
