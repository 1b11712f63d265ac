// Package emr fetches verification ground truth from an HL7 FHIR R4 server
// and maps it onto the engine's domain types.
package emr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/types"
)

// FHIRClient is a read-only FHIR R4 client scoped to the resources the
// verification engine treats as ground truth.
type FHIRClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// FHIRClientConfig holds client configuration
type FHIRClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewFHIRClient creates a new FHIR client
func NewFHIRClient(config *FHIRClientConfig, log *logger.Logger) *FHIRClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &FHIRClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// FetchPatientContext fetches the patient record and their latest encounter
// and maps both onto the engine's ground truth types. Allergies, conditions,
// and active medication orders are fetched alongside the patient resource so
// the protocol checkers have real data to match against.
func (c *FHIRClient) FetchPatientContext(ctx context.Context, patientID string) (*types.PatientProfile, *types.EMRContext, error) {
	patient, err := c.fetchPatient(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}

	profile := mapPatient(patientID, patient)

	allergies, err := c.fetchAllergies(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	profile.Allergies = allergies

	diagnoses, err := c.fetchConditions(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	profile.Diagnoses = diagnoses

	medications, err := c.fetchActiveMedications(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	profile.ActiveMedications = medications

	encounter, err := c.fetchLatestEncounter(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}

	emrContext := mapEncounter(patientID, encounter)
	return profile, emrContext, nil
}

func (c *FHIRClient) fetchPatient(ctx context.Context, patientID string) (*fhirPatient, error) {
	body, err := c.get(ctx, "/Patient/"+url.PathEscape(patientID), nil)
	if err != nil {
		return nil, err
	}

	var patient fhirPatient
	if err := json.Unmarshal(body, &patient); err != nil {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "failed to decode Patient resource", err)
	}
	return &patient, nil
}

func (c *FHIRClient) fetchLatestEncounter(ctx context.Context, patientID string) (*fhirEncounter, error) {
	body, err := c.get(ctx, "/Encounter", url.Values{
		"patient": {patientID},
		"_sort":   {"-date"},
		"_count":  {"1"},
	})
	if err != nil {
		return nil, err
	}

	var bundle fhirBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "failed to decode Encounter bundle", err)
	}
	if len(bundle.Entry) == 0 {
		return nil, nil
	}

	var encounter fhirEncounter
	if err := json.Unmarshal(bundle.Entry[0].Resource, &encounter); err != nil {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "failed to decode Encounter resource", err)
	}
	return &encounter, nil
}

func (c *FHIRClient) fetchAllergies(ctx context.Context, patientID string) ([]string, error) {
	bundle, err := c.searchBundle(ctx, "/AllergyIntolerance", url.Values{"patient": {patientID}})
	if err != nil {
		return nil, err
	}

	var allergies []string
	for _, entry := range bundle.Entry {
		var allergy fhirAllergyIntolerance
		if err := json.Unmarshal(entry.Resource, &allergy); err != nil {
			continue
		}
		if text := allergy.Code.DisplayText(); text != "" {
			allergies = append(allergies, text)
		}
	}
	return allergies, nil
}

func (c *FHIRClient) fetchConditions(ctx context.Context, patientID string) ([]string, error) {
	bundle, err := c.searchBundle(ctx, "/Condition", url.Values{"patient": {patientID}})
	if err != nil {
		return nil, err
	}

	var diagnoses []string
	for _, entry := range bundle.Entry {
		var condition fhirCondition
		if err := json.Unmarshal(entry.Resource, &condition); err != nil {
			continue
		}
		if text := condition.Code.DisplayText(); text != "" {
			diagnoses = append(diagnoses, text)
		}
	}
	return diagnoses, nil
}

func (c *FHIRClient) fetchActiveMedications(ctx context.Context, patientID string) ([]types.ActiveMedication, error) {
	bundle, err := c.searchBundle(ctx, "/MedicationRequest", url.Values{
		"patient": {patientID},
		"status":  {"active"},
	})
	if err != nil {
		return nil, err
	}

	var medications []types.ActiveMedication
	for _, entry := range bundle.Entry {
		var request fhirMedicationRequest
		if err := json.Unmarshal(entry.Resource, &request); err != nil {
			continue
		}
		name := request.MedicationCodeableConcept.DisplayText()
		if name == "" {
			continue
		}
		medication := types.ActiveMedication{Name: name}
		if len(request.DosageInstruction) > 0 {
			medication.Dosage = request.DosageInstruction[0].Text
		}
		medications = append(medications, medication)
	}
	return medications, nil
}

func (c *FHIRClient) searchBundle(ctx context.Context, path string, params url.Values) (*fhirBundle, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var bundle fhirBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, types.NewExternalError(types.ErrCodeExternalError, fmt.Sprintf("failed to decode %s bundle", strings.TrimPrefix(path, "/")), err)
	}
	return &bundle, nil
}

func (c *FHIRClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "failed to create FHIR request", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "FHIR request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "failed to read FHIR response", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("FHIR request completed")

	if resp.StatusCode == http.StatusNotFound {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("FHIR resource %s not found", path))
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewExternalError(types.ErrCodeExternalError, fmt.Sprintf("FHIR server returned status %d for %s", resp.StatusCode, path), nil)
	}

	return body, nil
}

// mapPatient maps a FHIR Patient resource onto the ground truth profile.
// FHIR names are a list of name parts; the official or first entry wins.
func mapPatient(patientID string, patient *fhirPatient) *types.PatientProfile {
	profile := &types.PatientProfile{
		PatientID: patientID,
		FirstName: "Unknown",
		LastName:  "Unknown",
	}

	if len(patient.Name) > 0 {
		name := patient.Name[0]
		if name.Family != "" {
			profile.LastName = name.Family
		}
		if len(name.Given) > 0 {
			profile.FirstName = strings.Join(name.Given, " ")
		}
	}

	if patient.BirthDate != "" {
		if dob, err := time.Parse("2006-01-02", patient.BirthDate); err == nil {
			profile.DateOfBirth = dob
		}
	}

	return profile
}

// mapEncounter maps the latest FHIR Encounter onto the visit context. A
// missing encounter yields a synthetic open visit anchored at now, which
// keeps date verification meaningful rather than silently absent.
func mapEncounter(patientID string, encounter *fhirEncounter) *types.EMRContext {
	emrContext := &types.EMRContext{
		VisitID:       "VISIT-UNKNOWN",
		PatientID:     patientID,
		AdmissionDate: time.Now().UTC(),
	}

	if encounter == nil {
		return emrContext
	}

	if encounter.ID != "" {
		emrContext.VisitID = encounter.ID
	}
	if encounter.Period.Start != "" {
		if start, err := time.Parse(time.RFC3339, encounter.Period.Start); err == nil {
			emrContext.AdmissionDate = start
		}
	}
	if encounter.Period.End != "" {
		if end, err := time.Parse(time.RFC3339, encounter.Period.End); err == nil {
			emrContext.DischargeDate = &end
		}
	}
	for _, participant := range encounter.Participant {
		if participant.Individual.Display != "" {
			emrContext.AttendingPhysician = participant.Individual.Display
			break
		}
	}

	return emrContext
}

// Minimal FHIR R4 resource shapes, limited to the fields this service reads.

type fhirBundle struct {
	ResourceType string            `json:"resourceType"`
	Entry        []fhirBundleEntry `json:"entry"`
}

type fhirBundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

type fhirPatient struct {
	ID        string          `json:"id"`
	Name      []fhirHumanName `json:"name"`
	BirthDate string          `json:"birthDate"`
}

type fhirHumanName struct {
	Family string   `json:"family"`
	Given  []string `json:"given"`
}

type fhirEncounter struct {
	ID          string                     `json:"id"`
	Period      fhirPeriod                 `json:"period"`
	Participant []fhirEncounterParticipant `json:"participant"`
}

type fhirPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type fhirEncounterParticipant struct {
	Individual fhirReference `json:"individual"`
}

type fhirReference struct {
	Display string `json:"display"`
}

type fhirAllergyIntolerance struct {
	Code fhirCodeableConcept `json:"code"`
}

type fhirCondition struct {
	Code fhirCodeableConcept `json:"code"`
}

type fhirMedicationRequest struct {
	MedicationCodeableConcept fhirCodeableConcept `json:"medicationCodeableConcept"`
	DosageInstruction         []fhirDosage        `json:"dosageInstruction"`
}

type fhirDosage struct {
	Text string `json:"text"`
}

type fhirCodeableConcept struct {
	Text   string       `json:"text"`
	Coding []fhirCoding `json:"coding"`
}

type fhirCoding struct {
	Display string `json:"display"`
}

// DisplayText returns the human-readable label for a concept, preferring
// the resource's own text over coding displays.
func (c fhirCodeableConcept) DisplayText() string {
	if c.Text != "" {
		return c.Text
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	return ""
}
