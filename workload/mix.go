package workload

import (
	"fmt"
	"strings"
)

type OperationType int

const (
	ReadOp OperationType = iota
	WriteOp
	DeleteOp
)

func (t OperationType) String() string {
	switch t {
	case WriteOp:
		return "write"
	case DeleteOp:
		return "delete"
	default:
		return "read"
	}
}

func (t OperationType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Mode selects which operation types traffic produces.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
	ModeMixed Mode = "mixed"
)

// ParseMode accepts read, write or mixed in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRead, ModeWrite, ModeMixed:
		return m, nil
	default:
		return "", fmt.Errorf("unknown operation mode %q", s)
	}
}

// Mix holds the fraction of each operation type. Fractions should sum to 1.
type Mix struct {
	Read   float64
	Write  float64
	Delete float64
}

// DefaultMix is 70% reads, 20% writes and 10% deletes.
var DefaultMix = Mix{Read: 0.7, Write: 0.2, Delete: 0.1}

// MixFor returns the mix for a mode. read and write force a single type.
func MixFor(m Mode) Mix {
	switch m {
	case ModeRead:
		return Mix{Read: 1}
	case ModeWrite:
		return Mix{Write: 1}
	default:
		return DefaultMix
	}
}

// ReadWrite returns a mix of reads and writes only, as used by benchmark scenarios.
func ReadWrite(readRatio float64) Mix {
	return Mix{Read: readRatio, Write: 1 - readRatio}
}

// Pick classifies u, drawn uniformly from [0, 1).
func (m Mix) Pick(u float64) OperationType {
	switch {
	case u < m.Read:
		return ReadOp
	case u < m.Read+m.Write:
		return WriteOp
	case m.Delete > 0:
		return DeleteOp
	case m.Write > 0:
		return WriteOp
	default:
		return ReadOp
	}
}
