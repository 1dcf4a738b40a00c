package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one scoring run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one task.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure is a task that scored below PassScore.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError is a task that could not be scored.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit converts a Summary to JUnit XML format.
func ConvertToJUnit(s Summary) *JUnitTestSuites {
	sec := s.Duration.Seconds()
	suite := JUnitTestSuite{
		Name:      s.Name,
		Tests:     len(s.Entries),
		Failures:  s.Failed,
		Errors:    s.Errors,
		Time:      sec,
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "mean_score", Value: fmt.Sprintf("%.2f", s.Mean)},
			{Name: "pass_score", Value: fmt.Sprintf("%.0f", PassScore)},
		},
	}
	for _, e := range s.Entries {
		suite.TestCases = append(suite.TestCases, convertEntry(s.Name, e))
	}

	return &JUnitTestSuites{
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       sec,
		TestSuites: []JUnitTestSuite{suite},
	}
}

func convertEntry(classname string, e Entry) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      e.TaskID,
		Classname: classname,
		Time:      e.Duration.Seconds(),
	}
	switch {
	case e.Err != nil || e.Result == nil:
		msg := "scoring error"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		tc.Error = &JUnitError{Message: msg, Type: "ScoringError"}
	case !e.Passed():
		tc.Failure = &JUnitFailure{
			Message: fmt.Sprintf("%s: score=%.2f", e.TaskID, e.Result.Total),
			Type:    "ScoreBelowThreshold",
			Body:    failureBody(e),
		}
	}
	return tc
}

func failureBody(e Entry) string {
	b := e.Result.Breakdown
	var sb strings.Builder
	fmt.Fprintf(&sb, "completeness=%.1f correctness=%.1f robustness=%.1f efficiency=%.1f data_quality=%.1f observability=%.1f\n",
		b.Completeness, b.Correctness, b.Robustness, b.Efficiency, b.DataQuality, b.Observability)
	for _, msg := range e.Result.Errors {
		sb.WriteString("[ERR] " + msg + "\n")
	}
	return sb.String()
}

// WriteJUnitXML writes JUnit XML to the specified file path.
func WriteJUnitXML(s Summary, path string) error {
	data, err := xml.MarshalIndent(ConvertToJUnit(s), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	output := append([]byte(xml.Header), data...)
	return os.WriteFile(path, output, 0644)
}
