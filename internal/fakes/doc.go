// Package fakes provides in-memory implementations of the cloud services the
// clients talk to, for unit tests.
//
// FakeSecretManagerClient satisfies secretstore.SecretManagerAPI and
// FakeWarehouse satisfies warehouse.Backend. Both report failures the way the
// real services do (gRPC status codes and googleapi HTTP errors) so that
// error classification is exercised end to end.
package fakes
