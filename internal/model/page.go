package model

type Page struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	PageNo     int    `json:"page_no"`
	FormType   string `json:"form_type"`
	State      int    `json:"state"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}
