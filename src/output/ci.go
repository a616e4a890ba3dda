package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sofmeright/crtb/src/deploy"
)

// CI environment detection.

func IsCI() bool {
	return os.Getenv("CI") == "true"
}

func IsGitLabCI() bool {
	return os.Getenv("GITLAB_CI") == "true"
}

// GitLab collapsible section helpers.

func SectionStart(w io.Writer, id, name string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_start:%d:%s\r\033[0K%s\n", time.Now().Unix(), id, name)
}

func SectionEnd(w io.Writer, id string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_end:%d:%s\r\033[0K\n", time.Now().Unix(), id)
}

// JUnit XML types for CI test reporting.

type JUnitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// DeployJUnit converts a batch into JUnit suites, one suite per component
// kind and one case per component.
func DeployJUnit(batch deploy.Batch) JUnitTestSuites {
	root := JUnitTestSuites{
		Name: "crtb-deploy",
		Time: seconds(batch.Duration),
	}

	index := map[string]int{}
	var elapsed []time.Duration
	for _, o := range batch.Outcomes {
		suiteName := "crtb/deploy/" + o.Kind.Plural()
		i, ok := index[suiteName]
		if !ok {
			i = len(root.Suites)
			index[suiteName] = i
			root.Suites = append(root.Suites, JUnitTestSuite{Name: suiteName})
			elapsed = append(elapsed, 0)
		}
		suite := &root.Suites[i]

		tc := JUnitTestCase{
			Name:      o.Name,
			Classname: "crtb.deploy." + o.Kind.String(),
			Time:      seconds(o.Duration),
		}
		if !o.Success {
			tc.Failure = &JUnitFailure{
				Message: o.Message,
				Type:    string(o.Phase),
			}
			if o.Err != nil {
				tc.Failure.Body = o.Err.Error()
			}
			suite.Failures++
			root.Failures++
		}
		suite.Cases = append(suite.Cases, tc)
		suite.Tests++
		root.Tests++
		elapsed[i] += o.Duration
	}
	for i := range root.Suites {
		root.Suites[i].Time = seconds(elapsed[i])
	}
	return root
}

// WriteDeployJUnit writes the batch as JUnit XML to path.
func WriteDeployJUnit(path string, batch deploy.Batch) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	f.WriteString(xml.Header)
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(DeployJUnit(batch)); err != nil {
		return fmt.Errorf("encoding junit xml: %w", err)
	}
	_, err = f.WriteString("\n")
	return err
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
