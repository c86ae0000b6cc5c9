package ir

// Matches reports whether an actual value satisfies a qualifier value.
//
//   - true matches any defined value other than false
//   - false matches false and undefined
//   - a set matches any of its members, or an actual set sharing a member
//   - anything else matches by equality (an actual set matches if it
//     contains the value)
func Matches(qualifier, actual Value) bool {
	switch q := qualifier.(type) {
	case Bool:
		if bool(q) {
			return !IsFalse(actual)
		}
		return IsFalse(actual)
	case Set:
		for _, m := range Members(actual) {
			if containsMember(q, m) {
				return true
			}
		}
		return false
	case nil, Null:
		return IsFalse(actual)
	default:
		if s, ok := actual.(Set); ok {
			return containsMember(s, qualifier)
		}
		return Equal(qualifier, actual)
	}
}

// Intersect computes the qualifier value that is satisfied exactly when
// both a and b are. ok is false when no value can satisfy both, which
// makes the enclosing conjunction unsatisfiable.
//
// true is the weaker "defined" constraint: intersected with any value
// other than false it yields that value.
func Intersect(a, b Value) (Value, bool) {
	if Equal(a, b) {
		return a, true
	}
	if isTrue(a) {
		if IsFalse(b) {
			return nil, false
		}
		return b, true
	}
	if isTrue(b) {
		if IsFalse(a) {
			return nil, false
		}
		return a, true
	}
	var common []Value
	for _, m := range Members(a) {
		if containsMember(Members(b), m) {
			common = append(common, m)
		}
	}
	if len(common) == 0 {
		return nil, false
	}
	return NewSet(common...), true
}

// Subsumes reports whether every actual value matching specific also
// matches general, i.e. general is the same or a weaker constraint.
func Subsumes(general, specific Value) bool {
	if Equal(general, specific) {
		return true
	}
	if isTrue(general) {
		for _, m := range Members(specific) {
			if IsFalse(m) {
				return false
			}
		}
		return len(Members(specific)) > 0
	}
	if isTrue(specific) {
		return false
	}
	g := Members(general)
	for _, m := range Members(specific) {
		if !containsMember(g, m) {
			return false
		}
	}
	return true
}

func isTrue(v Value) bool {
	b, ok := v.(Bool)
	return ok && bool(b)
}

// containsMember looks m up in a sorted member list.
func containsMember(members []Value, m Value) bool {
	lo, hi := 0, len(members)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		c := Compare(members[mid], m)
		switch {
		case c == 0:
			return true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}
