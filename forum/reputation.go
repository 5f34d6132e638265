package forum

// Compute returns the reputation proof p assigns to target. Boxes weigh in
// proportionally to their share of the proof's supply. Proof-by-Token proofs
// delegate to the proof their boxes point at, at most depth hops deep; the
// depth bound is the only guard against pointer cycles.
func Compute(proofs Proofs, p *ReputationProof, target string, depth int) float64 {
	if p == nil || p.TotalAmount == 0 {
		return 0
	}

	var total float64
	for _, b := range p.CurrentBoxes {
		proportion := float64(b.TokenAmount) / float64(p.TotalAmount)
		polarity := -1.0
		if b.Polarization {
			polarity = 1.0
		}
		total += proportion * polarity * boxReputation(proofs, p, b, target, depth)
	}

	return total
}

func boxReputation(proofs Proofs, p *ReputationProof, b RPBox, target string, depth int) float64 {
	if !p.Type.IsProofByToken() {
		if b.ObjectPointer == target {
			return 1
		}
		return 0
	}

	if b.ObjectPointer == p.TokenId {
		return 0
	}
	q, ok := proofs[b.ObjectPointer]
	if !ok || q == nil {
		return 0
	}
	if depth <= 0 {
		return 0
	}

	return Compute(proofs, q, target, depth-1)
}
