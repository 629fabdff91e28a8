// Package adjust builds and solves the bundle-adjustment problem: it
// marshals cameras, landmarks, and feature tracks into flat parameter
// blocks, assembles one reprojection residual per usable observation,
// applies the configured constancy policy, invokes the solver, and copies
// the optimized values back into new camera and landmark collections.
package adjust

import (
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"bundleadjust/camera"
	"bundleadjust/solver"
)

// BundleAdjuster jointly refines camera parameters and landmark positions
// to minimize reprojection error over a set of tracks.
type BundleAdjuster struct {
	cfg    Config
	logger logging.Logger
}

// New returns a bundle adjuster for a validated configuration.
func New(cfg Config, logger logging.Logger) (*BundleAdjuster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid bundle adjustment configuration")
	}
	if logger == nil {
		logger = logging.NewBlankLogger("bundleadjust")
	}
	return &BundleAdjuster{cfg: cfg, logger: logger}, nil
}

// Config returns the adjuster's configuration.
func (ba *BundleAdjuster) Config() Config {
	return ba.cfg
}

// Optimize refines the given cameras and landmarks against the tracks and
// returns new collections holding the optimized values; the inputs are
// never mutated. All three inputs are required: a nil map or track slice is
// a precondition error (empty ones are fine). Solver non-convergence is not
// an error; it is reported through the returned summary, and the returned
// collections hold the best values found.
func (ba *BundleAdjuster) Optimize(
	cams camera.CameraMap,
	lms camera.LandmarkMap,
	tracks []*camera.Track,
) (camera.CameraMap, camera.LandmarkMap, solver.Summary, error) {
	var summary solver.Summary
	if cams == nil {
		return nil, nil, summary, errors.New("camera map is required")
	}
	if lms == nil {
		return nil, nil, summary, errors.New("landmark map is required")
	}
	if tracks == nil {
		return nil, nil, summary, errors.New("track set is required")
	}

	ndp, err := camera.NumDistortionParams(ba.cfg.Camera.DistortionModel)
	if err != nil {
		return nil, nil, summary, err
	}

	camParams, intrParams, frameToIntr, err := extractCameraParameters(cams, ndp)
	if err != nil {
		return nil, nil, summary, err
	}
	lmParams := extractLandmarkParameters(cams, lms, tracks)

	problem := solver.NewProblem()
	intrRefs := make([]solver.BlockRef, len(intrParams))
	for i, params := range intrParams {
		intrRefs[i] = problem.AddParameterBlock(params)
	}
	extrRefs := make(map[camera.FrameID]solver.BlockRef, len(camParams))
	for _, id := range sortedFrameIDs(cams) {
		extrRefs[id] = problem.AddParameterBlock(camParams[id])
	}
	lmRefs := make(map[camera.TrackID]solver.BlockRef, len(lmParams))
	for _, id := range sortedTrackIDs(lmParams) {
		lmRefs[id] = problem.AddParameterBlock(lmParams[id])
	}

	lossFunc, err := solver.NewLossFunction(ba.cfg.LossFunctionType, ba.cfg.LossFunctionScale)
	if err != nil {
		return nil, nil, summary, err
	}

	// one residual term per observation whose landmark is retained and
	// whose frame has a camera
	for _, track := range tracks {
		lmRef, ok := lmRefs[track.ID]
		if !ok {
			continue
		}
		for _, obs := range track.Observations {
			extrRef, ok := extrRefs[obs.Frame]
			if !ok {
				continue
			}
			err := problem.AddResidualBlock(
				&reprojectionCost{observed: obs.Point},
				lossFunc,
				intrRefs[frameToIntr[obs.Frame]], extrRef, lmRef,
			)
			if err != nil {
				return nil, nil, summary, err
			}
		}
	}

	// ownership of the loss transfers to the problem on first attachment;
	// with no residual terms it was never attached and is discarded here
	if lossFunc != nil && !problem.OwnsLoss(lossFunc) {
		ba.logger.Debug("no residual terms were added, discarding unused loss function")
		lossFunc = nil
	}

	if err := ba.applyConstantIntrinsics(problem, intrRefs, ndp); err != nil {
		return nil, nil, summary, err
	}

	solverOpts := ba.cfg.Solver
	solverOpts.Verbose = ba.cfg.Verbose
	summary = solver.Solve(solverOpts, problem, ba.logger)
	ba.logger.Debugf("solver full report:\n%s", summary.FullReport())

	newCams, err := reassembleCameras(cams, camParams, intrParams, frameToIntr, ba.cfg.Camera.DistortionModel)
	if err != nil {
		return nil, nil, summary, err
	}
	newLms := reassembleLandmarks(lms, lmParams)
	return newCams, newLms, summary, nil
}

// applyConstantIntrinsics applies the constancy policy identically to every
// intrinsics group: an empty set leaves the group free, more than 4+D
// indices freezes the whole block, anything else fixes exactly the listed
// indices.
func (ba *BundleAdjuster) applyConstantIntrinsics(
	problem *solver.Problem,
	intrRefs []solver.BlockRef,
	ndp int,
) error {
	constant := ba.cfg.Camera.ConstantIntrinsics
	for _, ref := range intrRefs {
		switch {
		case len(constant) == 0:
		case len(constant) > 4+ndp:
			if err := problem.SetBlockConstant(ref); err != nil {
				return err
			}
		default:
			if err := problem.SetSubsetConstant(ref, constant); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractLandmarkParameters makes a scratch position vector for every
// landmark with at least one valid observation: one whose frame has a known
// camera. Landmarks observed by no camera stay out of the problem entirely.
func extractLandmarkParameters(
	cams camera.CameraMap,
	lms camera.LandmarkMap,
	tracks []*camera.Track,
) map[camera.TrackID][]float64 {
	lmParams := map[camera.TrackID][]float64{}
	for _, track := range tracks {
		lm, ok := lms[track.ID]
		if !ok {
			continue
		}
		if _, done := lmParams[track.ID]; done {
			continue
		}
		for _, obs := range track.Observations {
			if _, ok := cams[obs.Frame]; ok {
				pos := lm.Position
				lmParams[track.ID] = []float64{pos.X, pos.Y, pos.Z}
				break
			}
		}
	}
	return lmParams
}
