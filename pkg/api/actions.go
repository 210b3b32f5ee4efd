package api

// Action is one of the fixed operations the service can perform against EBPro.
// The string values are part of the public wire vocabulary.
type Action string

const (
	ActionOpenProject    Action = "open_project"
	ActionBuildExob      Action = "build_exob"
	ActionRunOfflineSim  Action = "run_offline_sim"
	ActionTakeScreenshot Action = "take_screenshot"
	ActionPackEcmp       Action = "pack_ecmp"
)

// Parameter names used by the actions.
const (
	ParamPath = "path" // Project file to open
	ParamOut  = "out"  // Output file produced by the action
)

// requiredParams lists the parameters every action must receive.
var requiredParams = map[Action][]string{
	ActionOpenProject:    {ParamPath},
	ActionBuildExob:      nil,
	ActionRunOfflineSim:  nil,
	ActionTakeScreenshot: {ParamOut},
	ActionPackEcmp:       {ParamOut},
}

// Actions returns the supported actions in their canonical order.
func Actions() []Action {
	return []Action{
		ActionOpenProject,
		ActionBuildExob,
		ActionRunOfflineSim,
		ActionTakeScreenshot,
		ActionPackEcmp,
	}
}

// Known reports whether a is part of the fixed vocabulary.
func (a Action) Known() bool {
	_, ok := requiredParams[a]
	return ok
}

// RequiredParams returns the parameter names a must receive.
func (a Action) RequiredParams() []string {
	return append([]string(nil), requiredParams[a]...)
}

// MissingParam returns the first required parameter absent (or empty) in params.
func (a Action) MissingParam(params map[string]string) (string, bool) {
	for _, name := range requiredParams[a] {
		if params[name] == "" {
			return name, true
		}
	}
	return "", false
}
