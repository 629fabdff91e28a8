package camera

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrapf(ErrNoIntrinsics, msg)
}

// Intrinsics holds the internal calibration of a camera: focal length,
// principal point, aspect ratio, skew, and a lens distortion model. The
// vertical focal length is FocalLength/AspectRatio.
type Intrinsics struct {
	FocalLength float64   `json:"focal_length"`
	Ppx         float64   `json:"ppx"`
	Ppy         float64   `json:"ppy"`
	AspectRatio float64   `json:"aspect_ratio"`
	Skew        float64   `json:"skew"`
	Distortion  Distorter `json:"-"`
}

// NewIntrinsics returns pinhole intrinsics with unit aspect ratio, zero skew
// and no distortion.
func NewIntrinsics(focalLength, ppx, ppy float64) *Intrinsics {
	return &Intrinsics{
		FocalLength: focalLength,
		Ppx:         ppx,
		Ppy:         ppy,
		AspectRatio: 1.0,
		Distortion:  &NoDistortion{},
	}
}

// CheckValid checks if the fields for Intrinsics have valid inputs.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if in.FocalLength <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length = %#v", in.FocalLength))
	}
	if in.AspectRatio <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid aspect ratio = %#v", in.AspectRatio))
	}
	if in.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point = %#v", in.Ppx))
	}
	if in.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point = %#v", in.Ppy))
	}
	if in.Distortion == nil {
		return NewNoIntrinsicsError("Distortion model does not exist")
	}
	return in.Distortion.CheckValid()
}

// DistortionModel returns the type of the active distortion model.
func (in *Intrinsics) DistortionModel() DistortionType {
	if in.Distortion == nil {
		return NoDistortionType
	}
	return in.Distortion.ModelType()
}

// ParameterVector flattens the intrinsics into the layout
// [focal, ppx, ppy, aspect, skew, d0 ... dD-1] used for optimization.
func (in *Intrinsics) ParameterVector() []float64 {
	dist := in.Distortion.Parameters()
	params := make([]float64, 0, 5+len(dist))
	params = append(params, in.FocalLength, in.Ppx, in.Ppy, in.AspectRatio, in.Skew)
	return append(params, dist...)
}

// IntrinsicsFromVector rebuilds intrinsics from the flat parameter layout
// produced by ParameterVector for the given distortion model.
func IntrinsicsFromVector(params []float64, distortionType DistortionType) (*Intrinsics, error) {
	ndp, err := NumDistortionParams(distortionType)
	if err != nil {
		return nil, err
	}
	if len(params) != 5+ndp {
		return nil, errors.Errorf("intrinsic vector for model %q must have length %d, got %d",
			distortionType, 5+ndp, len(params))
	}
	dist, err := NewDistorter(distortionType, params[5:])
	if err != nil {
		return nil, err
	}
	return &Intrinsics{
		FocalLength: params[0],
		Ppx:         params[1],
		Ppy:         params[2],
		AspectRatio: params[3],
		Skew:        params[4],
		Distortion:  dist,
	}, nil
}

// Project maps a point in the camera coordinate frame to a pixel in the
// image plane, applying the distortion model.
func (in *Intrinsics) Project(pt r3.Vector) r2.Point {
	xn := pt.X / pt.Z
	yn := pt.Y / pt.Z
	xd, yd := in.Distortion.Transform(xn, yn)
	return r2.Point{
		X: in.FocalLength*xd + in.Skew*yd + in.Ppx,
		Y: in.FocalLength/in.AspectRatio*yd + in.Ppy,
	}
}

type intrinsicsJSON struct {
	FocalLength          float64   `json:"focal_length"`
	Ppx                  float64   `json:"ppx"`
	Ppy                  float64   `json:"ppy"`
	AspectRatio          float64   `json:"aspect_ratio"`
	Skew                 float64   `json:"skew"`
	DistortionModel      string    `json:"distortion_model"`
	DistortionParameters []float64 `json:"distortion_parameters"`
}

// MarshalJSON flattens the distortion model into a type tag plus coefficients.
func (in Intrinsics) MarshalJSON() ([]byte, error) {
	distParams := []float64{}
	if in.Distortion != nil {
		distParams = in.Distortion.Parameters()
	}
	return json.Marshal(intrinsicsJSON{
		FocalLength:          in.FocalLength,
		Ppx:                  in.Ppx,
		Ppy:                  in.Ppy,
		AspectRatio:          in.AspectRatio,
		Skew:                 in.Skew,
		DistortionModel:      string(in.DistortionModel()),
		DistortionParameters: distParams,
	})
}

// UnmarshalJSON rebuilds the distortion model from its type tag.
func (in *Intrinsics) UnmarshalJSON(data []byte) error {
	var raw intrinsicsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.DistortionModel == "" {
		raw.DistortionModel = string(NoDistortionType)
	}
	dist, err := NewDistorter(DistortionType(raw.DistortionModel), raw.DistortionParameters)
	if err != nil {
		return err
	}
	in.FocalLength = raw.FocalLength
	in.Ppx = raw.Ppx
	in.Ppy = raw.Ppy
	in.AspectRatio = raw.AspectRatio
	in.Skew = raw.Skew
	in.Distortion = dist
	return nil
}

// NewIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into Intrinsics.
func NewIntrinsicsFromJSONFile(jsonPath string) (*Intrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &Intrinsics{}
	if err = json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err = intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}
