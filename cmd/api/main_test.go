package main

import (
	"testing"

	appconfig "github.com/klinikdesk/platform/internal/config"
	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/internal/identity"
	"github.com/klinikdesk/platform/pkg/logging"
)

func TestBuildResolverStaticWhenBypassEnabled(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		Env:              "development",
		ClinicID:         "clinic-1",
		AuthBypass:       true,
		AuthBypassRole:   "doctor",
		AuthBypassUserID: "dev-user-1",
	}

	resolver, err := buildResolver(cfg, docstore.NewMemoryStore(), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	static, ok := resolver.(*identity.StaticResolver)
	if !ok {
		t.Fatalf("expected static resolver, got %T", resolver)
	}
	if static.Role != identity.RoleDoctor || static.ClinicID != "clinic-1" {
		t.Fatalf("unexpected static resolver: %+v", static)
	}
}

func TestBuildResolverRejectsUnknownBypassRole(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		Env:            "development",
		ClinicID:       "clinic-1",
		AuthBypass:     true,
		AuthBypassRole: "superuser",
	}

	if _, err := buildResolver(cfg, docstore.NewMemoryStore(), logger); err == nil {
		t.Fatalf("expected error for unknown bypass role")
	}
}

func TestBuildResolverSessionByDefault(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		Env:              "production",
		ClinicID:         "clinic-1",
		SessionJWTSecret: "s3cret",
		MembershipsTable: "memberships",
	}

	resolver, err := buildResolver(cfg, docstore.NewMemoryStore(), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resolver.(*identity.SessionResolver); !ok {
		t.Fatalf("expected session resolver, got %T", resolver)
	}
}
