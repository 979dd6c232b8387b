// Package matcher provides predicate combinators for project root detection.
//
// A Matcher describes a test against a directory: "contains a child named X",
// an arbitrary user predicate, or a boolean combination of other matchers.
// Matchers are compiled once into a Predicate; evaluation is a direct call.
package matcher

import "sort"

// Predicate is a compiled matcher. It reports whether the directory at
// path satisfies the matcher.
type Predicate func(path string) bool

// Lister returns the names of the immediate children of a directory.
// Name matchers route all lookups through the Lister so that a caching
// implementation can avoid repeated filesystem scans.
type Lister func(path string) ([]string, error)

// Matcher is a predicate over directories that can be compiled against a
// directory Lister. Implementations are created with Name, Func, Any, All,
// and Not.
type Matcher interface {
	compile(list Lister) Predicate
}

// Name matches directories that contain an immediate child (file or
// directory) with the given name.
func Name(name string) Matcher {
	return nameMatcher(name)
}

// Func wraps an arbitrary predicate as a Matcher.
func Func(fn func(path string) bool) Matcher {
	return funcMatcher(fn)
}

// Any matches when at least one of the given matchers matches.
// Matchers are evaluated in order with short-circuiting.
func Any(matchers ...Matcher) Matcher {
	return anyMatcher(matchers)
}

// All matches when every one of the given matchers matches.
func All(matchers ...Matcher) Matcher {
	return allMatcher(matchers)
}

// Not inverts a matcher.
func Not(m Matcher) Matcher {
	return notMatcher{m}
}

// Normalize compiles a matcher into a single Predicate using the given
// Lister for child-name lookups. A nil matcher compiles to a predicate
// that never matches.
func Normalize(m Matcher, list Lister) Predicate {
	if m == nil {
		return func(string) bool { return false }
	}
	return m.compile(list)
}

type nameMatcher string

func (m nameMatcher) compile(list Lister) Predicate {
	name := string(m)
	return func(path string) bool {
		names, err := list(path)
		if err != nil {
			return false
		}
		// Listings from the directory cache are sorted by name.
		i := sort.SearchStrings(names, name)
		return i < len(names) && names[i] == name
	}
}

type funcMatcher func(path string) bool

func (m funcMatcher) compile(Lister) Predicate {
	return Predicate(m)
}

type anyMatcher []Matcher

func (m anyMatcher) compile(list Lister) Predicate {
	preds := compileAll(m, list)
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

type allMatcher []Matcher

func (m allMatcher) compile(list Lister) Predicate {
	preds := compileAll(m, list)
	return func(path string) bool {
		for _, p := range preds {
			if !p(path) {
				return false
			}
		}
		return len(preds) > 0
	}
}

type notMatcher struct {
	inner Matcher
}

func (m notMatcher) compile(list Lister) Predicate {
	pred := Normalize(m.inner, list)
	return func(path string) bool {
		return !pred(path)
	}
}

func compileAll(matchers []Matcher, list Lister) []Predicate {
	preds := make([]Predicate, 0, len(matchers))
	for _, m := range matchers {
		if m == nil {
			continue
		}
		preds = append(preds, m.compile(list))
	}
	return preds
}
