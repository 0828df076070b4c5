package qdrant

import (
	"context"
	"testing"
)

func TestAPIKeyCredentials(t *testing.T) {
	creds := apiKeyCreds{key: "secret"}
	md, err := creds.GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if md["api-key"] != "secret" {
		t.Errorf("metadata = %+v", md)
	}
	if creds.RequireTransportSecurity() {
		t.Error("plaintext deployments must stay dialable")
	}
}

func TestNewWithAPIKey(t *testing.T) {
	// No RPC is issued; this only exercises the client assembly.
	s, err := New("localhost", 6334, "secret", nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s, err = New("localhost", 6334, "", nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
}
