// Package menu derives the navigation tree from the user's permission set.
// Build is pure: same permissions in, same menu out, always.
package menu

import "github.com/azaruiz94/sse-web/internal/domain"

type Item struct {
	ID         string
	Title      string
	URL        string
	Permission domain.Permission
}

type Group struct {
	ID    string
	Title string
	Items []Item
}

// Candidate groups in fixed display order. Item order within a group and
// group order never vary with the permission set.
var groups = []Group{
	{
		ID:    "sistema",
		Title: "Sistema",
		Items: []Item{
			{ID: "solicitantes", Title: "Solicitantes", URL: "/solicitantes", Permission: domain.PermVerSolicitante},
			{ID: "expedientes", Title: "Expedientes", URL: "/expedientes", Permission: domain.PermVerExpediente},
			{ID: "plantillas", Title: "Plantillas", URL: "/templates", Permission: domain.PermVerResolucion},
			{ID: "resoluciones", Title: "Resoluciones", URL: "/resoluciones", Permission: domain.PermVerResolucion},
		},
	},
	{
		ID:    "configuracion",
		Title: "Configuración",
		Items: []Item{
			{ID: "estados", Title: "Estados", URL: "/estados", Permission: domain.PermVerEstado},
			{ID: "dependencias", Title: "Dependencias", URL: "/dependencias", Permission: domain.PermVerDependencia},
			{ID: "usuarios", Title: "Usuarios", URL: "/usuarios", Permission: domain.PermVerUsuario},
			{ID: "roles", Title: "Roles", URL: "/roles", Permission: domain.PermVerRol},
			{ID: "auditoria", Title: "Auditoría", URL: "/auditoria", Permission: domain.PermVerAuditoria},
		},
	},
}

// Build filters the static configuration down to the items the permission set
// allows. Groups left with no items are omitted entirely.
func Build(perms domain.PermissionSet) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		items := make([]Item, 0, len(g.Items))
		for _, it := range g.Items {
			if perms.Has(it.Permission) {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			continue
		}
		out = append(out, Group{ID: g.ID, Title: g.Title, Items: items})
	}
	return out
}
