package types

import "time"

// PatientProfile is the EMR ground truth for one patient, immutable for
// the duration of a verification call.
type PatientProfile struct {
	PatientID         string             `json:"patient_id"`
	FirstName         string             `json:"first_name"`
	LastName          string             `json:"last_name"`
	DateOfBirth       time.Time          `json:"date_of_birth"`
	Allergies         []string           `json:"allergies"`
	Diagnoses         []string           `json:"diagnoses"`
	ActiveMedications []ActiveMedication `json:"active_medications"`
}

// ActiveMedication is a medication the patient is currently on per the EMR.
type ActiveMedication struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
}

// EMRContext is the visit metadata defining the valid temporal window for
// AI-asserted dates. DischargeDate is nil while the encounter is open.
type EMRContext struct {
	VisitID            string     `json:"visit_id"`
	PatientID          string     `json:"patient_id"`
	AdmissionDate      time.Time  `json:"admission_date"`
	DischargeDate      *time.Time `json:"discharge_date,omitempty"`
	AttendingPhysician string     `json:"attending_physician"`
	RawNotes           string     `json:"raw_notes,omitempty"`
}

// AIGeneratedOutput is the candidate document under test. The engine
// never mutates it.
type AIGeneratedOutput struct {
	SummaryText           string                `json:"summary_text"`
	ExtractedDates        []time.Time           `json:"extracted_dates"`
	ExtractedDiagnoses    []string              `json:"extracted_diagnoses"`
	ExtractedMedications  []ExtractedMedication `json:"extracted_medications"`
	TemporalExpressions   []TemporalExpression  `json:"temporal_expressions,omitempty"`
	VitalSigns            []VitalSign           `json:"vital_signs,omitempty"`
	VisitType             string                `json:"visit_type,omitempty"`
	SuggestedBillingCodes []string              `json:"suggested_billing_codes,omitempty"`
}

// ExtractedMedication is a medication mention extracted upstream from the
// transcript.
type ExtractedMedication struct {
	Name      string     `json:"name"`
	Dosage    string     `json:"dosage,omitempty"`
	Frequency string     `json:"frequency,omitempty"`
	Route     string     `json:"route,omitempty"`
	Status    string     `json:"status,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
}

// ExtractedDiagnosis is a diagnosis mention extracted upstream.
type ExtractedDiagnosis struct {
	Text      string `json:"text"`
	ICD10Code string `json:"icd10_code,omitempty"`
}

// TemporalExpression is a date or time phrase extracted upstream.
type TemporalExpression struct {
	Text           string     `json:"text"`
	Type           string     `json:"type"`
	NormalizedDate *time.Time `json:"normalized_date,omitempty"`
}

// VitalSign is a single recorded vital measurement.
type VitalSign struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// StructuredExtraction is the structured view of an AI output that the
// protocol checkers evaluate.
type StructuredExtraction struct {
	PatientName         string                `json:"patient_name,omitempty"`
	VisitType           string                `json:"visit_type,omitempty"`
	Medications         []ExtractedMedication `json:"medications"`
	Diagnoses           []ExtractedDiagnosis  `json:"diagnoses"`
	TemporalExpressions []TemporalExpression  `json:"temporal_expressions"`
	VitalSigns          []VitalSign           `json:"vital_signs"`
}
