package domain

import (
	"encoding/json"
	"sort"
)

// Permission is a closed enumeration of the permission codes the backend can
// grant. Codes arriving from the wire are validated through Parse; anything
// outside this set is rejected at the gateway boundary instead of being
// carried around as an opaque string.
type Permission string

const (
	PermVerSolicitante   Permission = "VER_SOLICITANTE"
	PermVerExpediente    Permission = "VER_EXPEDIENTE"
	PermVerResolucion    Permission = "VER_RESOLUCION"
	PermVerEstado        Permission = "VER_ESTADO"
	PermVerDependencia   Permission = "VER_DEPENDENCIA"
	PermVerUsuario       Permission = "VER_USUARIO"
	PermVerRol           Permission = "VER_ROL"
	PermVerPermisos      Permission = "VER_PERMISOS"
	PermVerAuditoria     Permission = "VER_AUDITORIA"
	PermCrearSolicitante Permission = "CREAR_SOLICITANTE"
	PermCrearExpediente  Permission = "CREAR_EXPEDIENTE"
	PermCrearResolucion  Permission = "CREAR_RESOLUCION"
	PermFirmarResolucion Permission = "FIRMAR_RESOLUCION"
	PermCrearEstado      Permission = "CREAR_ESTADO"
	PermCrearDependencia Permission = "CREAR_DEPENDENCIA"
	PermCrearUsuario     Permission = "CREAR_USUARIO"
	PermEditarUsuario    Permission = "EDITAR_USUARIO"
	PermCrearRol         Permission = "CREAR_ROL"
	PermEditarRol        Permission = "EDITAR_ROL"
)

var knownPermissions = map[Permission]struct{}{
	PermVerSolicitante:   {},
	PermVerExpediente:    {},
	PermVerResolucion:    {},
	PermVerEstado:        {},
	PermVerDependencia:   {},
	PermVerUsuario:       {},
	PermVerRol:           {},
	PermVerPermisos:      {},
	PermVerAuditoria:     {},
	PermCrearSolicitante: {},
	PermCrearExpediente:  {},
	PermCrearResolucion:  {},
	PermFirmarResolucion: {},
	PermCrearEstado:      {},
	PermCrearDependencia: {},
	PermCrearUsuario:     {},
	PermEditarUsuario:    {},
	PermCrearRol:         {},
	PermEditarRol:        {},
}

// ParsePermission validates a wire-level permission code against the closed set.
func ParsePermission(code string) (Permission, bool) {
	p := Permission(code)
	_, ok := knownPermissions[p]
	return p, ok
}

// PermissionSet is the set of permissions granted to a user.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s PermissionSet) Add(p Permission) {
	s[p] = struct{}{}
}

// Sorted returns the codes in lexical order, for stable logging and encoding.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a list of codes, dropping anything outside the closed
// set. Wire payloads go through the gateway (which counts drops); this path
// only sees data the gateway already validated.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return err
	}
	out := make(PermissionSet, len(codes))
	for _, code := range codes {
		if p, ok := ParsePermission(code); ok {
			out[p] = struct{}{}
		}
	}
	*s = out
	return nil
}
