package vault

import (
	"errors"
	"fmt"
	"os"

	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/recovery"
)

// Check statuses.
const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// Check is one diagnostic result.
type Check struct {
	Name   string
	Status string
	Detail string
}

// DoctorReport is the aggregate of all diagnostics.
type DoctorReport struct {
	Checks []Check
}

// Healthy reports whether no check failed. Warnings do not count as
// unhealthy.
func (r *DoctorReport) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

func (r *DoctorReport) add(name, status, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Detail: detail})
}

// Doctor runs passphrase-free diagnostics: vault and sidecar presence,
// file permissions, recovery artifact integrity, capsule freshness, the
// symmetric engine self-test, and the audit database. Capsule freshness
// is verified end to end by recovering the passphrase and opening the
// vault with it.
func (s *Store) Doctor() *DoctorReport {
	r := &DoctorReport{}

	s.checkVaultFile(r)
	s.checkBackup(r)
	s.checkRecoveryArtifacts(r)
	s.checkEngine(r)
	s.checkAudit(r)

	return r
}

func (s *Store) checkVaultFile(r *DoctorReport) {
	info, err := os.Stat(s.path)
	if err != nil {
		r.add("vault file", StatusFail, fmt.Sprintf("not found at %s", s.path))
		return
	}
	r.add("vault file", StatusOK, s.path)

	if perm := info.Mode().Perm(); perm&0077 != 0 {
		r.add("vault permissions", StatusWarn, fmt.Sprintf("mode %04o is accessible to other users, expected %04o", perm, FileMode))
	} else {
		r.add("vault permissions", StatusOK, fmt.Sprintf("%04o", info.Mode().Perm()))
	}
}

func (s *Store) checkBackup(r *DoctorReport) {
	if _, err := os.Stat(s.path + BackupSuffix); err != nil {
		r.add("backup sidecar", StatusWarn, "no .bak copy yet; one is written on the next commit")
		return
	}
	r.add("backup sidecar", StatusOK, s.path+BackupSuffix)
}

func (s *Store) checkRecoveryArtifacts(r *DoctorReport) {
	_, keyErr := recovery.ReadKeyFile(s.keyPath)
	switch {
	case keyErr == nil:
		r.add("recovery key artifact", StatusOK, s.keyPath)
	case errors.Is(keyErr, recovery.ErrKeyMissing):
		r.add("recovery key artifact", StatusWarn, "not found; recovery requires the key artifact from init")
	default:
		r.add("recovery key artifact", StatusFail, keyErr.Error())
	}

	_, capErr := recovery.ReadCapsule(s.capsulePath)
	switch {
	case capErr == nil:
		r.add("recovery capsule", StatusOK, s.capsulePath)
	case errors.Is(capErr, recovery.ErrCapsuleMissing):
		r.add("recovery capsule", StatusWarn, "not found beside the vault")
	default:
		r.add("recovery capsule", StatusFail, capErr.Error())
	}

	if keyErr != nil || capErr != nil || !s.Exists() {
		return
	}

	pass, err := s.RecoverPassphrase()
	switch {
	case err == nil:
		pass.Wipe()
		r.add("capsule freshness", StatusOK, "recovered passphrase opens the vault")
	case errors.Is(err, ErrRecoveryKeyMismatch):
		r.add("capsule freshness", StatusFail, "private key does not match the capsule")
	case errors.Is(err, ErrRecoveryInconsistent):
		r.add("capsule freshness", StatusFail, "capsule holds a stale passphrase; run change-master to reseal it")
	default:
		r.add("capsule freshness", StatusFail, err.Error())
	}
}

// checkEngine seals and opens a probe value to verify the symmetric
// pipeline end to end.
func (s *Store) checkEngine(r *DoctorReport) {
	if s.eng == nil {
		r.add("encryption engine", StatusFail, "no engine configured")
		return
	}

	probe := crypto.NewPassphraseString("doctor-probe")
	defer probe.Wipe()

	blob, err := s.eng.Seal(probe, []byte("probe"))
	if err != nil {
		r.add("encryption engine", StatusFail, err.Error())
		return
	}
	plain, err := s.eng.Open(probe, blob)
	if err != nil || string(plain) != "probe" {
		r.add("encryption engine", StatusFail, "round trip failed")
		return
	}
	crypto.SecureWipe(plain)
	r.add("encryption engine", StatusOK, "seal/open round trip")
}

func (s *Store) checkAudit(r *DoctorReport) {
	if s.audit == nil {
		r.add("audit log", StatusWarn, "not configured")
		return
	}
	if err := s.audit.Check(); err != nil {
		r.add("audit log", StatusFail, err.Error())
		return
	}
	r.add("audit log", StatusOK, "event table readable")
}
