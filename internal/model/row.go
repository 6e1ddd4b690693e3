package model

// FieldMap holds the named values of one line item. The set of keys is a
// convention supplied by the page's form type; the store passes unknown
// keys through untouched.
type FieldMap map[string]interface{}

func (f FieldMap) Clone() FieldMap {
	if f == nil {
		return nil
	}
	out := make(FieldMap, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

const (
	FlagReviewed = "reviewed"
	FlagApproved = "approved"
)

// ReviewFlags is always read and written as a whole, never one flag at a
// time, so an update can never clobber the other flag with a stale value.
type ReviewFlags struct {
	Reviewed bool `json:"reviewed"`
	Approved bool `json:"approved"`
}

func (f ReviewFlags) Get(name string) bool {
	switch name {
	case FlagReviewed:
		return f.Reviewed
	case FlagApproved:
		return f.Approved
	}
	return false
}

func (f ReviewFlags) With(name string, value bool) ReviewFlags {
	switch name {
	case FlagReviewed:
		f.Reviewed = value
	case FlagApproved:
		f.Approved = value
	}
	return f
}

type Row struct {
	ID          string      `json:"id"`
	PageID      string      `json:"page_id"`
	DocumentID  string      `json:"document_id"`
	OrderIndex  int         `json:"order_index"`
	Fields      FieldMap    `json:"fields"`
	ReviewFlags ReviewFlags `json:"review_flags"`
	Version     int64       `json:"version"`
	State       int         `json:"state"`
	Ctime       int64       `json:"ctime"`
	Mtime       int64       `json:"mtime"`
}

func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = r.Fields.Clone()
	return &out
}
