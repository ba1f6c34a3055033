package intake

// Stage names the next unanswered required intake field, or StageScheduling
// once every required field is present.
type Stage string

const (
	StageName              Stage = "name"
	StagePhone             Stage = "phone"
	StageEmail             Stage = "email"
	StageDateOfBirth       Stage = "date_of_birth"
	StageReason            Stage = "reason"
	StageInsuranceProvider Stage = "insurance_provider"
	StageInsuranceID       Stage = "insurance_id"
	StageScheduling        Stage = "scheduling"
)

// ResolveStage derives the current stage from the collected fields. The order
// is a fixed top-to-bottom priority: the first missing field wins. Fields are
// monotonic, so once scheduling is reached no earlier stage is reachable.
func ResolveStage(f PatientFields) Stage {
	switch {
	case f.Name == "":
		return StageName
	case f.Phone == "":
		return StagePhone
	case f.Email == "":
		return StageEmail
	case f.DateOfBirth == "":
		return StageDateOfBirth
	case f.Reason == "":
		return StageReason
	case f.Insurance.Provider == "":
		return StageInsuranceProvider
	case f.Insurance.MemberID == "":
		return StageInsuranceID
	default:
		return StageScheduling
	}
}

// Question returns the scripted prompt for a stage. The turn generator is free
// to phrase its own question; this is the ground truth handed to it so it
// always knows what to ask next.
func (s Stage) Question() string {
	switch s {
	case StageName:
		return "May I have your full name, please?"
	case StagePhone:
		return "What is the best phone number to reach you?"
	case StageEmail:
		return "What is your email address?"
	case StageDateOfBirth:
		return "What is your date of birth?"
	case StageReason:
		return "What is the reason for your visit?"
	case StageInsuranceProvider:
		return "Who is your insurance provider?"
	case StageInsuranceID:
		return "What is your insurance member ID?"
	case StageScheduling:
		return "When would you like to come in for your appointment?"
	default:
		return ""
	}
}
