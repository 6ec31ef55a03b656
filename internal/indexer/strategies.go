package indexer

import "strings"

// MatchStrategy decides whether a set of collections contains the target
// collection.
type MatchStrategy interface {
	Name() string
	Match(cols []Collection) bool
}

// ExactContractMatch compares collection contract addresses.
type ExactContractMatch struct {
	Contract string
}

func (ExactContractMatch) Name() string { return "exact" }

func (m ExactContractMatch) Match(cols []Collection) bool {
	for _, c := range cols {
		if c.ContractAddress == m.Contract {
			return true
		}
	}
	for _, c := range cols {
		if c.ContractAddress != "" && strings.EqualFold(c.ContractAddress, m.Contract) {
			return true
		}
	}
	return false
}

// ItemContractMatch looks at the contract address on each held item.
type ItemContractMatch struct {
	Contract string
}

func (ItemContractMatch) Name() string { return "item" }

func (m ItemContractMatch) Match(cols []Collection) bool {
	for _, c := range cols {
		for _, it := range c.Items {
			if it.ContractAddress != "" && strings.EqualFold(it.ContractAddress, m.Contract) {
				return true
			}
		}
	}
	return false
}

// NameKeywordMatch matches collection names containing any keyword,
// case-insensitively.
type NameKeywordMatch struct {
	Keywords []string
}

func (NameKeywordMatch) Name() string { return "keyword" }

func (m NameKeywordMatch) Match(cols []Collection) bool {
	for _, c := range cols {
		name := strings.ToLower(c.Name)
		if name == "" {
			continue
		}
		for _, kw := range m.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(name, kw) {
				return true
			}
		}
	}
	return false
}

// PartialPrefixMatch compares the first Length characters of the lowercase
// contract address, "0x" included. It is the loosest tier and can be
// disabled in config.
type PartialPrefixMatch struct {
	Contract string
	Length   int
}

func (PartialPrefixMatch) Name() string { return "prefix" }

func (m PartialPrefixMatch) Match(cols []Collection) bool {
	want := prefix(m.Contract, m.Length)
	if want == "" {
		return false
	}
	for _, c := range cols {
		if c.ContractAddress != "" && prefix(c.ContractAddress, m.Length) == want {
			return true
		}
	}
	return false
}

func prefix(addr string, n int) string {
	addr = strings.ToLower(addr)
	if n <= 0 || len(addr) < n {
		return ""
	}
	return addr[:n]
}

// StrategyConfig selects and parameterizes the matching tiers.
type StrategyConfig struct {
	Contract     string
	Keywords     []string
	PrefixMatch  bool
	PrefixLength int
}

// DefaultStrategies returns the tiers in decreasing order of strictness.
func DefaultStrategies(cfg StrategyConfig) []MatchStrategy {
	s := []MatchStrategy{
		ExactContractMatch{Contract: cfg.Contract},
		ItemContractMatch{Contract: cfg.Contract},
	}
	if len(cfg.Keywords) > 0 {
		s = append(s, NameKeywordMatch{Keywords: cfg.Keywords})
	}
	if cfg.PrefixMatch {
		n := cfg.PrefixLength
		if n <= 0 {
			n = 6
		}
		s = append(s, PartialPrefixMatch{Contract: cfg.Contract, Length: n})
	}
	return s
}

// FirstMatch returns the name of the first strategy that matches.
func FirstMatch(strategies []MatchStrategy, cols []Collection) (string, bool) {
	if len(cols) == 0 {
		return "", false
	}
	for _, s := range strategies {
		if s.Match(cols) {
			return s.Name(), true
		}
	}
	return "", false
}
