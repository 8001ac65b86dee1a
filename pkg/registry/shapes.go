package registry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/result"
)

// evalPattern checks a string value at a path against an anchored
// regular expression. An empty or missing value always fails; a format
// rule never passes vacuously.
func evalPattern(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: pattern shape requires a path param")
	}
	pattern, ok := rule.StringParam("pattern")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: pattern shape requires a pattern param")
	}

	node := doc.Lookup(path)
	ev := []result.KV{{Key: "path", Value: path}, {Key: "pattern", Value: pattern}}
	if node.Missing() {
		return result.Fail(rule.ID, fmt.Sprintf("%s is absent", path), ev...)
	}
	if node.Kind != document.KindString {
		return result.Fail(rule.ID, fmt.Sprintf("%s is %s, expected string", path, node.Kind), ev...)
	}
	ev = append(ev, result.KV{Key: "value", Value: node.Str})
	if node.Str == "" {
		return result.Fail(rule.ID, fmt.Sprintf("%s is empty", path), ev...)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return result.Fail(rule.ID, fmt.Sprintf("evaluator error: invalid pattern: %v", err), ev...)
	}
	if !re.MatchString(node.Str) {
		return result.Fail(rule.ID, fmt.Sprintf("%s value %q does not match %s", path, node.Str, pattern), ev...)
	}
	if rule.BoolParam("semver") {
		if _, err := semver.StrictNewVersion(node.Str); err != nil {
			return result.Fail(rule.ID, fmt.Sprintf("%s value %q is not strict semver: %v", path, node.Str, err), ev...)
		}
	}
	return result.Pass(rule.ID, fmt.Sprintf("%s matches %s", path, pattern), ev...)
}

// evalPresence checks that a path resolves to a non-Missing node of the
// expected type. Absence and emptiness are reported distinctly; whether
// an empty value is acceptable is pinned per rule via allow_empty.
func evalPresence(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: presence shape requires a path param")
	}
	wantType, _ := rule.StringParam("type")
	if wantType == "" {
		wantType = "any"
	}
	allowEmpty := rule.BoolParam("allow_empty")

	node := doc.Lookup(path)
	ev := []result.KV{{Key: "path", Value: path}, {Key: "expected_type", Value: wantType}}
	if node.Missing() {
		if node.Explicit {
			return result.Fail(rule.ID, fmt.Sprintf("%s is explicitly null", path), ev...)
		}
		return result.Fail(rule.ID, fmt.Sprintf("%s is absent", path), ev...)
	}
	if wantType != "any" && node.Kind != document.KindFromName(wantType) {
		return result.Fail(rule.ID, fmt.Sprintf("%s is %s, expected %s", path, node.Kind, wantType), ev...)
	}
	if !allowEmpty && node.Empty() {
		return result.Fail(rule.ID, fmt.Sprintf("%s is present but empty", path), ev...)
	}
	return result.Pass(rule.ID, fmt.Sprintf("%s is present", path), ev...)
}

// evalCardinality checks exact counts: the container at the path must
// hold exactly `groups` children, and when `children` is set, every
// group must hold exactly that many children. Equality is exact; there
// is no off-by-one tolerance in either direction.
func evalCardinality(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: cardinality shape requires a path param")
	}
	wantGroups, ok := rule.IntParam("groups")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: cardinality shape requires a groups param")
	}

	node := doc.Lookup(path)
	ev := []result.KV{{Key: "path", Value: path}, {Key: "expected_groups", Value: strconv.Itoa(wantGroups)}}
	if node.Missing() {
		return result.Fail(rule.ID, fmt.Sprintf("%s is absent", path), ev...)
	}
	if node.Kind != document.KindList && node.Kind != document.KindMapping {
		return result.Fail(rule.ID, fmt.Sprintf("%s is %s, expected list or mapping", path, node.Kind), ev...)
	}

	got := node.Len()
	ev = append(ev, result.KV{Key: "groups", Value: strconv.Itoa(got)})
	if got != wantGroups {
		return result.Fail(rule.ID, fmt.Sprintf("%s has %d groups, expected exactly %d", path, got, wantGroups), ev...)
	}

	wantChildren, hasChildren := rule.IntParam("children")
	if hasChildren {
		ev = append(ev, result.KV{Key: "expected_children", Value: strconv.Itoa(wantChildren)})
		for i := 0; i < got; i++ {
			name, child := groupAt(node, i)
			if n := child.Len(); n != wantChildren {
				ev = append(ev, result.KV{Key: "deviant_group", Value: name})
				return result.Fail(rule.ID,
					fmt.Sprintf("group %s has %d children, expected exactly %d", name, n, wantChildren), ev...)
			}
		}
	}
	return result.Pass(rule.ID, fmt.Sprintf("%s has exactly %d groups", path, got), ev...)
}

func groupAt(node *document.Node, i int) (string, *document.Node) {
	if node.Kind == document.KindMapping {
		return node.Fields[i].Key, node.Fields[i].Value
	}
	return strconv.Itoa(i), node.Items[i]
}

// evalDuplicates flags repeated values in a scalar list. The failure
// message reports duplicated values in first-seen order of the values
// that repeat, not in input order.
func evalDuplicates(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: duplicates shape requires a path param")
	}

	items, ok := doc.Strings(path)
	ev := []result.KV{{Key: "path", Value: path}}
	if !ok {
		return result.Fail(rule.ID, fmt.Sprintf("%s is not a list of scalar values", path), ev...)
	}

	seen := make(map[string]bool, len(items))
	recorded := make(map[string]bool)
	var dups []string
	for _, item := range items {
		if seen[item] && !recorded[item] {
			dups = append(dups, item)
			recorded[item] = true
		}
		seen[item] = true
	}

	ev = append(ev, result.KV{Key: "count", Value: strconv.Itoa(len(items))})
	if len(dups) > 0 {
		ev = append(ev, result.KV{Key: "duplicates", Value: strings.Join(dups, ",")})
		return result.Fail(rule.ID, fmt.Sprintf("%s contains duplicates: %s", path, strings.Join(dups, ", ")), ev...)
	}
	return result.Pass(rule.ID, fmt.Sprintf("%s contains no duplicates", path), ev...)
}

// evalThreshold triggers only when every declared comparison holds at
// once. A missing input makes the rule inconclusive, which is
// non-triggered: a heuristic never fails on data it does not have.
func evalThreshold(rule *contract.Rule, doc *document.Document) result.RuleResult {
	gapPath, ok := rule.StringParam("gap_path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: threshold shape requires a gap_path param")
	}
	valuePath, ok := rule.StringParam("value_path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: threshold shape requires a value_path param")
	}
	gapAbove, ok := rule.FloatParam("gap_above")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: threshold shape requires a gap_above param")
	}
	valueAbove, ok := rule.FloatParam("value_above")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: threshold shape requires a value_above param")
	}

	gap, gapOK := doc.Number(gapPath)
	value, valueOK := doc.Number(valuePath)
	ev := []result.KV{
		{Key: "gap_path", Value: gapPath},
		{Key: "value_path", Value: valuePath},
	}
	if !gapOK || !valueOK {
		return result.Pass(rule.ID, "inconclusive: required input absent, threshold not triggered", ev...)
	}

	ev = append(ev,
		result.KV{Key: "gap", Value: strconv.FormatFloat(gap, 'g', -1, 64)},
		result.KV{Key: "value", Value: strconv.FormatFloat(value, 'g', -1, 64)},
	)
	if gap > gapAbove && value > valueAbove {
		return result.Fail(rule.ID,
			fmt.Sprintf("gap %g exceeds %g and value %g exceeds %g", gap, gapAbove, value, valueAbove), ev...)
	}
	return result.Pass(rule.ID, "thresholds not exceeded", ev...)
}
