package record

// #region store
// Store exposes the named scalar fields of one record. Each accessor returns the
// value and whether a field of that name and type exists; a type mismatch reads
// as absent.
type Store interface {
	Bool(name string) (bool, bool)
	Float(name string) (float64, bool)
	Int(name string) (int64, bool)
	Uint(name string) (uint64, bool)
}

// #endregion store

// #region id-fields
// Field names of the identifying triple recorded in event-key logs.
const (
	FieldRun  = "run"
	FieldLumi = "lumi"
	FieldEvt  = "evt"
)

// #endregion id-fields
