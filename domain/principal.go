// domain/principal.go
package domain

const PublicNamespace = "public"

// Principal is the signed-in identity. A nil *Principal means signed out.
type Principal struct {
	UID         string `json:"uid"`
	IsAnonymous bool   `json:"isAnonymous"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Namespace resolves the subtree all of a principal's data lives under.
func Namespace(p *Principal) string {
	if p == nil || p.UID == "" {
		return PublicNamespace
	}
	return "users/" + p.UID
}

func FoldersPath(ns string) string { return ns + "/folders" }

func NotesPath(ns string) string { return ns + "/notes" }

func FolderPath(ns, id string) string { return FoldersPath(ns) + "/" + id }

func NotePath(ns, id string) string { return NotesPath(ns) + "/" + id }
