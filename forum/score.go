package forum

func polarity(c Comment) int {
	if c.IsSpam {
		return 0
	}
	if c.Sentiment {
		return 1
	}
	return -1
}

// Score folds the reply tree of c into a signed integer. A positive reply
// amplifies the score of its own subtree, a negative one inverts it, and spam
// replies are pruned together with their subtree.
func Score(c Comment) int {
	total := 0
	for _, r := range c.Replies {
		v := polarity(r)
		switch {
		case v == 0:
		case len(r.Replies) == 0:
			total += v
		case v > 0:
			total += v + Score(r)
		default:
			total += v - Score(r)
		}
	}
	return total
}
