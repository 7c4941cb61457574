package reduce

import "fmt"

// MissingMasterPolicy decides what happens when a flat or light frame
// needs a master frame that the run does not have.
type MissingMasterPolicy int

const (
	// MissingMasterAbort fails the run on the first frame whose
	// required master is absent. This is the default.
	MissingMasterAbort MissingMasterPolicy = iota

	// MissingMasterSkip lets the run continue: flats proceed without
	// dark correction, lights that cannot be corrected are skipped and
	// recorded in the run result.
	MissingMasterSkip
)

func (p MissingMasterPolicy) String() string {
	switch p {
	case MissingMasterAbort:
		return "abort"
	case MissingMasterSkip:
		return "skip"
	default:
		return fmt.Sprintf("MissingMasterPolicy(%d)", int(p))
	}
}

// ParseMissingMasterPolicy maps a config string to a policy value.
func ParseMissingMasterPolicy(s string) (MissingMasterPolicy, error) {
	switch s {
	case "abort", "":
		return MissingMasterAbort, nil
	case "skip":
		return MissingMasterSkip, nil
	default:
		return MissingMasterAbort, fmt.Errorf("unknown missing-master policy %q (want abort or skip)", s)
	}
}

// NonFinitePolicy decides how flat-field division treats divisor pixels
// that would produce NaN or infinite output.
type NonFinitePolicy int

const (
	// NonFiniteFail rejects a master flat whose normalized array
	// contains zero or non-finite pixels before any division happens.
	// This is the default.
	NonFiniteFail NonFinitePolicy = iota

	// NonFinitePropagate performs the division anyway and counts the
	// non-finite output pixels in the run result.
	NonFinitePropagate
)

func (p NonFinitePolicy) String() string {
	switch p {
	case NonFiniteFail:
		return "fail"
	case NonFinitePropagate:
		return "propagate"
	default:
		return fmt.Sprintf("NonFinitePolicy(%d)", int(p))
	}
}

// ParseNonFinitePolicy maps a config string to a policy value.
func ParseNonFinitePolicy(s string) (NonFinitePolicy, error) {
	switch s {
	case "fail", "":
		return NonFiniteFail, nil
	case "propagate":
		return NonFinitePropagate, nil
	default:
		return NonFiniteFail, fmt.Errorf("unknown non-finite policy %q (want fail or propagate)", s)
	}
}
