package model

const (
	VisibilityPublic   = "public"
	VisibilityPrivate  = "private"
	VisibilityInternal = "internal"
)

type Package struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	OwnerID    string `json:"owner_id"`
	Visibility string `json:"visibility"`
	Archived   int    `json:"archived"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}
