package resilience

import (
	"github.com/sells-group/philgeps-cli/internal/model"
)

// NewFailedRecord records one candidate that could not be scraped, tagged
// with whether a later run is likely to succeed.
func NewFailedRecord(key, url string, err error) model.FailedRecord {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return model.FailedRecord{
		Key:       key,
		URL:       url,
		Error:     msg,
		ErrorType: ClassifyError(err),
	}
}
