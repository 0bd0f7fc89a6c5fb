package types

// Persistence classifies a relation (and therefore which undo log its
// writers attach to).
type Persistence int32

const (
	PERMANENT Persistence = iota
	UNLOGGED
	TEMP
)

func (p Persistence) String() string {
	switch p {
	case PERMANENT:
		return "PERMANENT"
	case UNLOGGED:
		return "UNLOGGED"
	case TEMP:
		return "TEMP"
	default:
		return "UNKNOWN"
	}
}
