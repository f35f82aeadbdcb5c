package phoenixpd

import (
	"fmt"
	"time"

	"municipalrecords-backend/lib/sanitize"
	"municipalrecords-backend/lib/timezone"
)

type ReportType string

const (
	ReportIncident        ReportType = "incident"
	ReportTrafficCrash    ReportType = "traffic_crash"
	ReportBodyCamera      ReportType = "body_camera"
	ReportSurveillance    ReportType = "surveillance"
	Report911Recordings   ReportType = "recordings_911"
	ReportCallsForService ReportType = "calls_for_service"
	ReportCrimeStatistics ReportType = "crime_statistics"
)

// Field names the logical inputs of the request form, independent of
// whatever the portal happens to call them this month.
type Field string

const (
	FieldCaseNumber   Field = "case_number"
	FieldFirstName    Field = "first_name"
	FieldLastName     Field = "last_name"
	FieldEmail        Field = "email"
	FieldPhone        Field = "phone"
	FieldAddress      Field = "address"
	FieldDate         Field = "date"
	FieldOfficerBadge Field = "officer_badge"
)

// ReportConfig parameterizes the one submission pipeline per report
// type: there is deliberately no per-type code path.
type ReportConfig struct {
	DisplayName  string
	FormValue    string
	BaseFeeCents int64
	// logical fields the portal form carries for this type
	Fields []Field
	// zero means no retention window applies
	MaxAgeDays int
	// at least one of case number / officer badge must be present
	NeedsCaseOrBadge bool
	NeedsCaseNumber  bool
	NeedsAddress     bool
	NeedsArea        bool
}

var ReportConfigs = map[ReportType]ReportConfig{
	ReportIncident: {
		DisplayName:     "Incident Report",
		FormValue:       "incident_report",
		BaseFeeCents:    500,
		Fields:          []Field{FieldCaseNumber, FieldFirstName, FieldLastName, FieldEmail, FieldPhone},
		NeedsCaseNumber: true,
	},
	ReportTrafficCrash: {
		DisplayName:     "Traffic Crash",
		FormValue:       "traffic_crash",
		BaseFeeCents:    500,
		Fields:          []Field{FieldCaseNumber, FieldFirstName, FieldLastName, FieldEmail, FieldPhone},
		NeedsCaseNumber: true,
	},
	ReportBodyCamera: {
		DisplayName:      "On Body Camera Audio/Video",
		FormValue:        "body_camera",
		BaseFeeCents:     400,
		Fields:           []Field{FieldCaseNumber, FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldOfficerBadge, FieldDate},
		NeedsCaseOrBadge: true,
	},
	ReportSurveillance: {
		DisplayName:      "Surveillance Videos",
		FormValue:        "surveillance_video",
		BaseFeeCents:     400,
		Fields:           []Field{FieldCaseNumber, FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldAddress, FieldDate},
		NeedsCaseOrBadge: true,
	},
	Report911Recordings: {
		DisplayName:     "911 Recordings",
		FormValue:       "911_recording",
		BaseFeeCents:    1650,
		Fields:          []Field{FieldCaseNumber, FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldDate},
		NeedsCaseNumber: true,
		// the city only retains 911 audio for 190 days
		MaxAgeDays: 190,
	},
	ReportCallsForService: {
		DisplayName:  "Calls for Service",
		FormValue:    "calls_for_service",
		BaseFeeCents: 0,
		Fields:       []Field{FieldAddress, FieldDate, FieldFirstName, FieldLastName, FieldEmail, FieldPhone},
		NeedsAddress: true,
	},
	ReportCrimeStatistics: {
		DisplayName:  "Crime Statistics",
		FormValue:    "crime_statistics",
		BaseFeeCents: 0,
		Fields:       []Field{FieldAddress, FieldDate, FieldFirstName, FieldLastName, FieldEmail, FieldPhone},
		NeedsArea:    true,
	},
}

// SubmissionRequest carries the caller-supplied inputs for one
// submission attempt. Values arrive raw and are sanitized here before
// any portal interaction.
type SubmissionRequest struct {
	ReportType   ReportType
	CaseNumber   string
	Contact      sanitize.ContactInfo
	IncidentDate time.Time
	// category specific extras keyed by logical field
	Extra map[Field]string
}

// prepared is the sanitized, validated value set handed to the form
// filling stage.
type prepared struct {
	config ReportConfig
	values map[Field]string
}

// prepare validates report type restrictions and sanitizes every
// input. A failure here is fatal to the attempt and guarantees no
// portal interaction takes place.
func prepare(req SubmissionRequest) (prepared, error) {
	config, ok := ReportConfigs[req.ReportType]
	if !ok {
		return prepared{}, &sanitize.ValidationError{
			Field:  "report_type",
			Reason: fmt.Sprintf("unknown report type %q", req.ReportType),
		}
	}

	if config.MaxAgeDays > 0 {
		if req.IncidentDate.IsZero() {
			return prepared{}, &sanitize.ValidationError{
				Field:  "incident_date",
				Reason: fmt.Sprintf("%s requests require an incident date", config.DisplayName),
			}
		}
		age := timezone.Now().Sub(req.IncidentDate)
		if age > time.Duration(config.MaxAgeDays)*24*time.Hour {
			return prepared{}, &sanitize.ValidationError{
				Field:  "incident_date",
				Reason: fmt.Sprintf("%s are only available within %d days of the incident", config.DisplayName, config.MaxAgeDays),
			}
		}
	}
	if config.NeedsCaseOrBadge && req.CaseNumber == "" && req.Extra[FieldOfficerBadge] == "" {
		return prepared{}, &sanitize.ValidationError{
			Field:  "case_number",
			Reason: fmt.Sprintf("%s requests require either a case number or an officer badge number", config.DisplayName),
		}
	}
	if config.NeedsCaseNumber && req.CaseNumber == "" {
		return prepared{}, &sanitize.ValidationError{Field: "case_number", Reason: "cannot be empty"}
	}
	if config.NeedsAddress && req.Extra[FieldAddress] == "" && req.Contact.Address == "" {
		return prepared{}, &sanitize.ValidationError{
			Field:  "address",
			Reason: fmt.Sprintf("%s requests require a specific address", config.DisplayName),
		}
	}
	if config.NeedsArea && req.Extra[FieldAddress] == "" {
		return prepared{}, &sanitize.ValidationError{
			Field:  "address",
			Reason: fmt.Sprintf("%s requests require an area", config.DisplayName),
		}
	}

	values := map[Field]string{}

	if req.CaseNumber != "" {
		caseNumber, err := sanitize.CaseNumber(req.CaseNumber)
		if err != nil {
			return prepared{}, err
		}
		values[FieldCaseNumber] = caseNumber
	}

	contact, err := sanitize.Contact(req.Contact)
	if err != nil {
		return prepared{}, err
	}
	if contact.FirstName != "" {
		values[FieldFirstName] = contact.FirstName
	}
	if contact.LastName != "" {
		values[FieldLastName] = contact.LastName
	}
	if contact.Email != "" {
		values[FieldEmail] = contact.Email
	}
	if contact.Phone != "" {
		values[FieldPhone] = contact.Phone
	}
	if contact.Address != "" {
		values[FieldAddress] = contact.Address
	}

	if !req.IncidentDate.IsZero() {
		values[FieldDate] = req.IncidentDate.Format("01/02/2006")
	}
	for field, value := range req.Extra {
		if value == "" {
			continue
		}
		values[field] = sanitize.FreeText(value)
	}

	return prepared{config: config, values: values}, nil
}
