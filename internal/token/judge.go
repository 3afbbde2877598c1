package token

// Token bundle keys inspected during authorize.
const (
	KeyUser   = "authorization"
	KeyDevice = "www-vehicle-device"
)

// StaticJudge accepts a bundle when either the user or device token equals
// the configured value. Placeholder-grade on purpose: the protocol's access
// model is coarse and two-state, and real verification lives outside the
// gateway.
type StaticJudge struct {
	valid string
}

func NewStaticJudge(valid string) *StaticJudge {
	return &StaticJudge{valid: valid}
}

func (j *StaticJudge) Judge(tokens map[string]string) bool {
	if len(tokens) == 0 {
		return false
	}
	return tokens[KeyUser] == j.valid || tokens[KeyDevice] == j.valid
}
