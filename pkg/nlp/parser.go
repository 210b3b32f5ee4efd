// Package nlp classifies free-text Ukrainian/English instructions into one of
// the fixed EBPro actions.
package nlp

import (
	"fmt"
	"regexp"
	"strings"

	"ebpro/pkg/api"
)

// keywordHint is returned with every classification failure.
const keywordHint = "Використайте ключові слова відкрий/зібрати/симуляція/скріншот/запакуй."

// quotedRe matches content between a matching pair of double or single quotes.
var quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

// Command is the classified form of an instruction.
type Command struct {
	Action api.Action        `json:"action"`
	Params map[string]string `json:"params"`
}

// rule binds a keyword pattern to an action. When param is set, the action
// cannot be returned without a value for it.
type rule struct {
	action  api.Action
	pattern *regexp.Regexp
	param   string
	missing string // Message used when param cannot be resolved
}

// rules are evaluated in order and the first match wins. The patterns are
// not disjoint ("зібрати ... ecmp" matches build and pack), so the order is
// part of the parser's contract.
var rules = []rule{
	{
		action:  api.ActionOpenProject,
		pattern: regexp.MustCompile(`(відкри(й|ти)|open).*(проєкт|проект)`),
		param:   api.ParamPath,
		missing: "Не вдалося знайти шлях до проєкту. Додайте його у лапках або в полі args.path.",
	},
	{
		action:  api.ActionBuildExob,
		pattern: regexp.MustCompile(`зібра(ти|й)|компілювати|build|експортуй`),
	},
	{
		action:  api.ActionRunOfflineSim,
		pattern: regexp.MustCompile(`(офлайн|offline).*(симуляц(ію|ія)|simulation)`),
	},
	{
		action:  api.ActionTakeScreenshot,
		pattern: regexp.MustCompile(`скрін|скріншот|screenshot`),
		param:   api.ParamOut,
		missing: "Для скріншота вкажіть шлях збереження у лапках або у полі args.out.",
	},
	{
		action:  api.ActionPackEcmp,
		pattern: regexp.MustCompile(`запакуй|упакуй|compress|ecmp`),
		param:   api.ParamOut,
		missing: "Для пакування в ECMP вкажіть шлях збереження у лапках або у полі args.out.",
	},
}

// Error is a classification failure. Missing names the required parameter
// that could not be resolved; it is empty when no action matched at all.
type Error struct {
	Message string
	Missing string
}

func (e *Error) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("missing parameter %q: %s", e.Missing, e.Message)
	}
	return e.Message
}

// Failure converts e into the user-facing failure carried to channels.
func (e *Error) Failure() *api.Failure {
	return api.NewFailure(api.KindClassification, e.Message, keywordHint).Wrap(e)
}

// Parse maps text plus overrides to a Command. Overrides are never mutated
// and always take precedence over values found in text. The returned error
// is an *api.Failure of kind classification wrapping an *Error.
func Parse(text string, overrides map[string]string) (*Command, error) {
	if strings.TrimSpace(text) == "" {
		return nil, (&Error{Message: "Надайте текст інструкції українською мовою."}).Failure()
	}

	lowered := strings.ToLower(text)
	params := make(map[string]string, len(overrides)+1)
	for k, v := range overrides {
		params[k] = v
	}

	for _, r := range rules {
		if !r.pattern.MatchString(lowered) {
			continue
		}
		if r.param != "" {
			value := params[r.param]
			if value == "" {
				value = ExtractQuoted(text)
			}
			if value == "" {
				return nil, (&Error{Message: r.missing, Missing: r.param}).Failure()
			}
			params[r.param] = value
		}
		return &Command{Action: r.action, Params: params}, nil
	}

	return nil, (&Error{
		Message: "Не вдалося визначити дію. Використайте ключові слова: відкрий, зібрати, офлайн симуляція, скріншот, запакуй.",
	}).Failure()
}

// ExtractQuoted returns the first quoted substring of text, or "".
func ExtractQuoted(text string) string {
	m := quotedRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
