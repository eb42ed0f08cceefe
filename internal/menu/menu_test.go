package menu

import (
	"reflect"
	"testing"

	"github.com/azaruiz94/sse-web/internal/domain"
)

func TestBuildEmptyPermissionsYieldsEmptyMenu(t *testing.T) {
	if got := Build(domain.NewPermissionSet()); len(got) != 0 {
		t.Fatalf("expected empty menu, got %d groups", len(got))
	}
	if got := Build(nil); len(got) != 0 {
		t.Fatalf("expected empty menu for nil set, got %d groups", len(got))
	}
}

func TestBuildOmitsEmptyGroups(t *testing.T) {
	got := Build(domain.NewPermissionSet(domain.PermVerEstado))
	if len(got) != 1 {
		t.Fatalf("expected exactly one group, got %d", len(got))
	}
	if got[0].ID != "configuracion" {
		t.Fatalf("expected the Configuración group, got %q", got[0].ID)
	}
	if len(got[0].Items) != 1 || got[0].Items[0].ID != "estados" {
		t.Fatalf("expected only Estados, got %+v", got[0].Items)
	}
}

func TestBuildSharedPermissionUnlocksBothEntries(t *testing.T) {
	got := Build(domain.NewPermissionSet(domain.PermVerResolucion))
	if len(got) != 1 || got[0].ID != "sistema" {
		t.Fatalf("expected only Sistema, got %+v", got)
	}
	ids := itemIDs(got[0])
	if !reflect.DeepEqual(ids, []string{"plantillas", "resoluciones"}) {
		t.Fatalf("VER_RESOLUCION covers both template and resolution views, got %v", ids)
	}
}

func TestBuildOrderIsFixed(t *testing.T) {
	perms := domain.NewPermissionSet(
		domain.PermVerAuditoria,
		domain.PermVerSolicitante,
		domain.PermVerUsuario,
		domain.PermVerExpediente,
	)
	got := Build(perms)
	if len(got) != 2 || got[0].ID != "sistema" || got[1].ID != "configuracion" {
		t.Fatalf("expected Sistema before Configuración, got %+v", got)
	}
	if ids := itemIDs(got[0]); !reflect.DeepEqual(ids, []string{"solicitantes", "expedientes"}) {
		t.Fatalf("item order must follow the static configuration, got %v", ids)
	}
	if ids := itemIDs(got[1]); !reflect.DeepEqual(ids, []string{"usuarios", "auditoria"}) {
		t.Fatalf("item order must follow the static configuration, got %v", ids)
	}
}

func TestBuildIsPure(t *testing.T) {
	perms := domain.NewPermissionSet(domain.PermVerExpediente, domain.PermVerRol)
	first := Build(perms)
	second := Build(perms)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical menus for identical permission sets")
	}
}

func itemIDs(g Group) []string {
	ids := make([]string, 0, len(g.Items))
	for _, it := range g.Items {
		ids = append(ids, it.ID)
	}
	return ids
}
