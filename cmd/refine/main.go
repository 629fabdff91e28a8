// refine runs bundle adjustment over a scene file: it loads cameras,
// landmarks, and tracks from JSON, refines them, and writes the result.
package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils"

	"bundleadjust/adjust"
	"bundleadjust/camera"
)

func main() {
	if err := realMain(); err != nil {
		panic(err)
	}
}

func realMain() error {
	scenePath := flag.String("scene", "", "path to the input scene JSON")
	configPath := flag.String("config", "", "path to a config JSON (defaults apply if empty)")
	outPath := flag.String("out", "", "path to write the refined scene JSON")
	verbose := flag.Bool("verbose", false, "log optimization progress at each iteration")
	flag.Parse()

	logger := logging.NewLogger("refine")
	if *scenePath == "" || *outPath == "" {
		return errors.New("both -scene and -out are required")
	}

	cfg := adjust.DefaultConfig()
	if *configPath != "" {
		if err := loadJSON(*configPath, &cfg); err != nil {
			return errors.Wrap(err, "error loading config")
		}
	}
	cfg.Verbose = cfg.Verbose || *verbose

	scene := &sceneFile{}
	if err := loadJSON(*scenePath, scene); err != nil {
		return errors.Wrap(err, "error loading scene")
	}
	cams, lms, tracks, err := scene.toModel()
	if err != nil {
		return err
	}

	ba, err := adjust.New(cfg, logger)
	if err != nil {
		return err
	}
	newCams, newLms, summary, err := ba.Optimize(cams, lms, tracks)
	if err != nil {
		return err
	}
	logger.Infof("optimization %s after %d iterations: cost %.6e -> %.6e",
		summary.Status, summary.Iterations, summary.InitialCost, summary.FinalCost)
	if !summary.Success() {
		logger.Warnf("solver did not produce a solution: %s", summary.Message)
	}

	out := sceneFromModel(newCams, newLms, scene.Tracks)
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(*outPath, data, 0o644)
}

func loadJSON(path string, dst interface{}) error {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return json.NewDecoder(f).Decode(dst)
}

// sceneFile is the on-disk scene layout.
type sceneFile struct {
	Cameras   map[int64]cameraJSON `json:"cameras"`
	Landmarks map[int64][3]float64 `json:"landmarks"`
	Tracks    []trackJSON          `json:"tracks"`
}

type cameraJSON struct {
	Center      [3]float64        `json:"center"`
	Orientation [4]float64        `json:"orientation"` // quaternion w, x, y, z
	Intrinsics  camera.Intrinsics `json:"intrinsics"`
}

type trackJSON struct {
	ID           int64             `json:"id"`
	Observations []observationJSON `json:"observations"`
}

type observationJSON struct {
	Frame int64      `json:"frame"`
	Point [2]float64 `json:"point"`
}

func (s *sceneFile) toModel() (camera.CameraMap, camera.LandmarkMap, []*camera.Track, error) {
	cams := make(camera.CameraMap, len(s.Cameras))
	for id, cj := range s.Cameras {
		intrinsics := cj.Intrinsics
		if err := intrinsics.CheckValid(); err != nil {
			return nil, nil, nil, errors.Wrapf(err, "camera %d", id)
		}
		pose := spatialmath.NewPose(
			r3.Vector{X: cj.Center[0], Y: cj.Center[1], Z: cj.Center[2]},
			&spatialmath.Quaternion{
				Real: cj.Orientation[0],
				Imag: cj.Orientation[1],
				Jmag: cj.Orientation[2],
				Kmag: cj.Orientation[3],
			},
		)
		cams[camera.FrameID(id)] = camera.NewCamera(pose, &intrinsics)
	}
	lms := make(camera.LandmarkMap, len(s.Landmarks))
	for id, pos := range s.Landmarks {
		lms[camera.TrackID(id)] = camera.NewLandmark(r3.Vector{X: pos[0], Y: pos[1], Z: pos[2]})
	}
	tracks := make([]*camera.Track, 0, len(s.Tracks))
	for _, tj := range s.Tracks {
		observations := make([]camera.Observation, 0, len(tj.Observations))
		for _, oj := range tj.Observations {
			observations = append(observations, camera.Observation{
				Frame: camera.FrameID(oj.Frame),
				Point: r2.Point{X: oj.Point[0], Y: oj.Point[1]},
			})
		}
		tracks = append(tracks, camera.NewTrack(camera.TrackID(tj.ID), observations))
	}
	return cams, lms, tracks, nil
}

func sceneFromModel(cams camera.CameraMap, lms camera.LandmarkMap, tracks []trackJSON) *sceneFile {
	out := &sceneFile{
		Cameras:   make(map[int64]cameraJSON, len(cams)),
		Landmarks: make(map[int64][3]float64, len(lms)),
		Tracks:    tracks,
	}
	for id, cam := range cams {
		center := cam.Pose.Point()
		q := cam.Pose.Orientation().Quaternion()
		out.Cameras[int64(id)] = cameraJSON{
			Center:      [3]float64{center.X, center.Y, center.Z},
			Orientation: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
			Intrinsics:  *cam.Intrinsics,
		}
	}
	for id, lm := range lms {
		out.Landmarks[int64(id)] = [3]float64{lm.Position.X, lm.Position.Y, lm.Position.Z}
	}
	return out
}
