package textmatch

// Jaccard returns |A ∩ B| / |A ∪ B|. If either set is empty the result is 0,
// including when both are empty.
func Jaccard(a, b KeywordSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return ratio(a, b)
}

// JaccardEmptyAsEqual is Jaccard except that two empty sets are identical (1.0).
// Prerequisite suggestion compares course profiles with it.
func JaccardEmptyAsEqual(a, b KeywordSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return ratio(a, b)
}

func ratio(a, b KeywordSet) float64 {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	inter := 0
	for t := range small {
		if large.Has(t) {
			inter++
		}
	}

	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
