// engine/views.go
package engine

import (
	"sort"

	"github.com/vinizap/pronode/domain"
)

// joinFolders nests notes under the folder their ParentID names. Orphans
// are left out. Inputs are not modified.
func joinFolders(folders []domain.Folder, notes []domain.Note) []domain.FolderView {
	byParent := make(map[string][]domain.Note, len(folders))
	for _, n := range notes {
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}

	out := make([]domain.FolderView, 0, len(folders))
	for _, f := range folders {
		children := byParent[f.ID]
		if children == nil {
			children = []domain.Note{}
		}
		sort.SliceStable(children, func(i, j int) bool {
			ci, cj := children[i].Created(), children[j].Created()
			if !ci.Equal(cj) {
				return ci.Before(cj)
			}
			return children[i].ID < children[j].ID
		})
		out = append(out, domain.FolderView{Folder: f, Notes: children})
	}
	return out
}
