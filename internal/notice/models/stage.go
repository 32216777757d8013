package models

// Stage is a processing stage code on the notice lifecycle.
type Stage string

const (
	StageNewInvestigation Stage = "NPA"
	StageRegisteredOwner  Stage = "ROV"
	StageEnquiry          Stage = "ENA"
	StageReminder1        Stage = "RD1"
	StageReminder2        Stage = "RD2"
	StageRedirectFinal    Stage = "RR3"
	StageDriverNotice1    Stage = "DN1"
	StageDriverNotice2    Stage = "DN2"
	StageDriverFinal      Stage = "DR3"
	StageCourt            Stage = "CPC"
	StageClosed           Stage = "CFC"
)

func (s Stage) String() string {
	return string(s)
}

// IsBlank reports whether no stage was recorded.
func (s Stage) IsBlank() bool {
	return s == ""
}
