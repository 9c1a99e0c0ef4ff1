package ledger

// ValidateBalanced ensures lines sum to a balanced double-entry posting.
func ValidateBalanced(lines []EntryLine) error {
	if len(lines) < 2 {
		return ErrInvalidEntryLines
	}

	var debitTotal int64
	var creditTotal int64
	for _, line := range lines {
		if line.Amount < 0 {
			return ErrInvalidLineAmount
		}
		switch line.Direction {
		case DirectionDebit:
			debitTotal += line.Amount
		case DirectionCredit:
			creditTotal += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}

	if debitTotal != creditTotal {
		return ErrUnbalancedEntry
	}
	return nil
}
