package audit

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/courier/internal/model"
)

// DateLayout is the layout of the date segment in folder names (yyyyMMdd).
const DateLayout = "20060102"

// Messages reported by ParseName.
const (
	msgNameValid       = "Folder name is valid"
	msgNameNearMiss    = "Folder name does not match the required format EmployeeID_yyyyMMdd_Dataset[_N]"
	msgNameWrong       = "Wrong folder name pattern"
	msgNameBadDate     = "Folder name date segment is not a valid yyyyMMdd date"
	msgNameBadSegments = "Folder name matches the pattern but does not have EmployeeID_Date_Dataset segments"
)

// ParseName validates a folder name against pattern and extracts its components.
//
// A name matching pattern must also carry a real calendar date. Names that do
// not match but still have 3 or 4 underscore-delimited segments get best-effort
// fields so the operator sees what was understood; any other segment count
// yields no fields at all.
func ParseName(name string, pattern *regexp.Regexp) model.NameCheck {
	parts := strings.Split(name, "_")
	segments := len(parts)

	if pattern != nil && pattern.MatchString(name) {
		if segments != 3 && segments != 4 {
			return model.NameCheck{Message: msgNameBadSegments}
		}
		fields := fieldsFromParts(parts)
		check := model.NameCheck{Fields: fields, Parsed: true}
		if fields.Date.IsZero() {
			check.Message = msgNameBadDate
			return check
		}
		check.Valid = true
		check.Message = msgNameValid
		return check
	}

	switch segments {
	case 3, 4:
		return model.NameCheck{
			Fields:  fieldsFromParts(parts),
			Parsed:  true,
			Message: msgNameNearMiss,
		}
	default:
		return model.NameCheck{Message: msgNameWrong}
	}
}

func fieldsFromParts(parts []string) model.NameFields {
	fields := model.NameFields{
		EmployeeID: parts[0],
		DateText:   parts[1],
		Dataset:    parts[2],
	}
	if d, err := time.Parse(DateLayout, parts[1]); err == nil {
		fields.Date = d
	}
	if len(parts) == 4 {
		if n, err := strconv.Atoi(parts[3]); err == nil && n > 0 {
			fields.Sequence = n
			fields.HasSeq = true
		}
	}
	return fields
}
