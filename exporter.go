package robustpgo

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Exporter defines an export interface.
type Exporter interface {
	Write(key Key, state []float64, covar mat.Symmetric) error
	Close() error
}

// CSVExporter writes one line per pose: the key, then each tangent coordinate
// followed by its +2σ and -2σ bounds.
type CSVExporter struct {
	delimiter string
	hdlr      *os.File
}

// Close closes the file.
func (e CSVExporter) Close() (err error) {
	err = e.WriteRawLn(fmt.Sprintf("# Closing date (UTC): %s", time.Now().UTC()))
	if err != nil {
		return
	}
	return e.hdlr.Close()
}

// Write writes a pose and its covariance to the CSV file. A nil covariance is
// written as zero bounds.
func (e CSVExporter) Write(key Key, state []float64, covar mat.Symmetric) error {
	r := len(state)
	vals := make([]string, r*3+1)
	vals[0] = key.String()
	for i := 0; i < r; i++ {
		var bound float64
		if covar != nil {
			bound = 2 * math.Sqrt(covar.At(i, i))
		}
		vals[3*i+1] = fmt.Sprintf("%f", state[i])
		vals[3*i+2] = fmt.Sprintf("%f", bound)
		vals[3*i+3] = fmt.Sprintf("%f", -1*bound)
	}
	_, err := e.hdlr.WriteString(strings.Join(vals, e.delimiter) + "\n")
	return err
}

// WriteRawLn writes a raw line to the CSV file.
func (e CSVExporter) WriteRawLn(s string) error {
	_, err := e.hdlr.WriteString(s + "\n")
	return err
}

// NewCSVExporter initializes a new CSV export with one header per tangent coordinate.
func NewCSVExporter(headers []string, dir, filename string) (e *CSVExporter, err error) {
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return nil, errors.Wrap(err, "creating export file")
	}
	delimiter := ","
	hdr := make([]string, len(headers)*3+1)
	hdr[0] = "key"
	for i, h := range headers {
		hdr[3*i+1] = h
		hdr[3*i+2] = h + "+2s"
		hdr[3*i+3] = h + "-2s"
	}
	if _, err = fmt.Fprintf(f, "# Creation date (UTC): %s\n%s\n", time.Now().UTC(), strings.Join(hdr, delimiter)); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVExporter{delimiter, f}, nil
}

// ExportValues writes the tangent coordinates of every value, in key order.
func ExportValues[T Pose[T]](e Exporter, values Values[T]) error {
	for _, k := range values.Keys() {
		if err := e.Write(k, values[k].Logmap(), nil); err != nil {
			return errors.Wrapf(err, "exporting %s", k)
		}
	}
	return nil
}

// ExportTrajectory writes the odometry trajectory with its propagated covariance.
func ExportTrajectory[T Pose[T]](e Exporter, t *Trajectory[T, PoseWithCovariance[T]]) error {
	for _, tp := range t.Range(t.StartID, t.EndID) {
		if err := e.Write(tp.ID, tp.Pose.Pose().Logmap(), tp.Pose.Covariance()); err != nil {
			return errors.Wrapf(err, "exporting %s", tp.ID)
		}
	}
	return nil
}
