package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/roundness/internal/domain/model"
)

func TestMemorySource(t *testing.T) {
	Convey("Given a memory source of two traces", t, func() {
		src := NewMemorySource(
			model.Trace{Samples: []float64{1}, SampleRate: 10},
			model.Trace{Samples: []float64{2, 3}, SampleRate: 10},
		)

		Convey("Then traces are served by index", func() {
			So(src.Len(), ShouldEqual, 2)
			tr, err := src.ReadTrace(context.Background(), 1)
			So(err, ShouldBeNil)
			So(tr.Samples, ShouldResemble, []float64{2, 3})
		})

		Convey("Then out-of-range indices fail", func() {
			_, err := src.ReadTrace(context.Background(), 2)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
		})

		Convey("Then a cancelled context fails", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := src.ReadTrace(ctx, 0)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestDirSource(t *testing.T) {
	Convey("Given a directory of trace files", t, func() {
		dir := t.TempDir()
		So(WriteSamples(filepath.Join(dir, "b.txt"), []float64{0.5, 1.25}), ShouldBeNil)
		So(WriteSamples(filepath.Join(dir, "a.txt"), []float64{4.75}), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "c.txt"), []byte("# volts\n\n1.5\n  2.5 \n"), 0o600), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o600), ShouldBeNil)
		So(os.Mkdir(filepath.Join(dir, "d.txt"), 0o700), ShouldBeNil)

		src, err := NewDirSource(dir, "", 100)
		So(err, ShouldBeNil)

		Convey("Then matching files are listed by name", func() {
			So(src.Len(), ShouldEqual, 3)
			So(filepath.Base(src.Path(0)), ShouldEqual, "a.txt")
			So(filepath.Base(src.Path(2)), ShouldEqual, "c.txt")
			So(src.Path(3), ShouldEqual, "")
		})

		Convey("Then samples round-trip and carry the sample rate", func() {
			tr, err := src.ReadTrace(context.Background(), 1)
			So(err, ShouldBeNil)
			So(tr.Samples, ShouldResemble, []float64{0.5, 1.25})
			So(tr.SampleRate, ShouldEqual, 100)
		})

		Convey("Then comments and blank lines are skipped", func() {
			tr, err := src.ReadTrace(context.Background(), 2)
			So(err, ShouldBeNil)
			So(tr.Samples, ShouldResemble, []float64{1.5, 2.5})
		})

		Convey("Then out-of-range indices fail", func() {
			_, err := src.ReadTrace(context.Background(), -1)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
		})
	})

	Convey("Given a file with a bad line", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "x.txt"), []byte("1\nvolt\n"), 0o600), ShouldBeNil)
		src, err := NewDirSource(dir, "*.txt", 50)
		So(err, ShouldBeNil)

		Convey("Then reading reports a malformed trace", func() {
			_, err := src.ReadTrace(context.Background(), 0)
			So(errors.Is(err, model.ErrMalformedTrace), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "line 2")
		})
	})

	Convey("Given an empty directory", t, func() {
		_, err := NewDirSource(t.TempDir(), "*.txt", 50)

		Convey("Then no source is created", func() {
			So(errors.Is(err, ErrNoTraces), ShouldBeTrue)
		})
	})
}
