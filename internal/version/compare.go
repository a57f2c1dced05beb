package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
)

// DevelopmentVersion disables the compatibility check on either side.
const DevelopmentVersion = "main"

// CheckVersionCompatibility reports whether a config written for configVersion can be run
// by an engine at engineVersion. Major and minor must match; patch may differ.
//
//   - engine 1.2.1, config 1.2.0 -> ok
//   - engine 1.3.0, config 1.2.0 -> minor version mismatch
//   - engine main, config 1.2.0 -> ok
//
// An empty config version is treated as "written for this engine".
func CheckVersionCompatibility(engineVersion, configVersion string) error {
	engineVersion = strings.TrimPrefix(strings.TrimSpace(engineVersion), "v")
	configVersion = strings.TrimPrefix(strings.TrimSpace(configVersion), "v")

	if configVersion == "" || engineVersion == DevelopmentVersion || configVersion == DevelopmentVersion {
		return nil
	}

	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid engine version '%s'", engineVersion)
	}

	config, err := semver.NewVersion(configVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid config version '%s'", configVersion)
	}

	if engine.Major() != config.Major() {
		return errors.Newf(errors.ErrCodeInvalidVersion, "major version mismatch: engine is %d.x.x but config requires %d.x.x",
			engine.Major(), config.Major())
	}

	if engine.Minor() != config.Minor() {
		return errors.Newf(errors.ErrCodeInvalidVersion, "minor version mismatch: engine is %d.%d.x but config requires %d.%d.x",
			engine.Major(), engine.Minor(), config.Major(), config.Minor())
	}

	return nil
}
