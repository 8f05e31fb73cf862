package scf

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/qmsolve/mrscf/internal/comm"
	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/operator"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// Optimize runs the SCF iteration until convergence or the iteration cap.
// Non-convergence is reported through Result.Converged, never as an error;
// errors are reserved for fatal invariant violations and cancellation. After
// a returned error the generations may be inconsistent and the solver must
// be re-Setup before reuse.
func (s *Solver) Optimize(ctx context.Context) (Result, error) {
	if s.state != Ready {
		return Result{}, apperrors.NewSolverError(
			"optimize requires a bound solver, state is %s", s.state)
	}
	s.state = Iterating

	errO := s.phi.MaxError()
	errT := errO
	propErr := math.Inf(1)
	converged := false

	nIter := 0
	for s.opts.MaxIter < 0 || nIter < s.opts.MaxIter {
		if err := ctx.Err(); err != nil {
			return Result{}, apperrors.WrapError(err, "optimization interrupted at iteration %d", nIter)
		}
		nIter++
		iterStart := time.Now()

		// Precision for this iteration from the previous orbital error.
		cur := s.prec.Adjust(errO)

		// Basis rotation. Snapshots from the previous basis are useless to
		// the accelerator afterwards.
		if s.needsRotation(nIter) {
			if err := s.rotate(cur, s.phi, s.fmat); err != nil {
				return Result{}, err
			}
			s.acc.Clear()
		}

		// Effective operator at the current generation and precision.
		s.fock.Clear()
		if err := s.fock.Setup(cur); err != nil {
			return Result{}, err
		}
		if s.opts.Mode == OrbitalOptimizer {
			M, err := s.fock.Matrix(s.phi, s.phi)
			if err != nil {
				return Result{}, err
			}
			s.fmat.CloneFrom(M)
		}

		energy, err := s.fock.Trace(s.phi)
		if err != nil {
			return Result{}, err
		}
		if n := len(s.energies); n > 0 {
			propErr = math.Abs(energy.Total - s.energies[n-1].Total)
		}
		s.energies = append(s.energies, energy)

		// Helmholtz update: one resolvent per orbital from the matrix
		// diagonal, argument assembled from the applied potential and the
		// off-diagonal couplings.
		n := s.phi.Size()
		lambdas := make([]float64, n)
		for i := 0; i < n; i++ {
			lambdas[i] = s.fmat.At(i, i)
		}
		if err := s.helm.Setup(cur, lambdas); err != nil {
			return Result{}, err
		}
		lam := s.helm.LambdaMatrix()

		args, err := s.helmholtzArgument(cur, lam)
		if err != nil {
			return Result{}, err
		}
		phiNext, err := s.helm.ApplyAll(args)
		if err != nil {
			return Result{}, err
		}
		s.helm.Clear()

		// Update vectors and error norms, reduced across owners before the
		// max and the aggregate norm are taken.
		dPhi := orbital.Add(1, phiNext, -1, s.phi)
		errs := dPhi.Norms()
		if err := s.com.AllReduceSum(errs); err != nil {
			return Result{}, err
		}
		errO, errT = 0, 0
		for _, e := range errs {
			if e > errO {
				errO = e
			}
			errT += e * e
		}
		errT = math.Sqrt(errT)

		// Fock-matrix update and acceleration.
		var dF *mat.Dense
		if s.opts.Mode == EnergyOptimizer {
			dF, err = s.calcFockMatrixUpdate(cur, dPhi, lam)
			if err != nil {
				return Result{}, err
			}
			if err := s.acc.Accelerate(cur, s.phi, dPhi, s.fmat, dF); err != nil {
				return Result{}, err
			}
		} else {
			if err := s.acc.Accelerate(cur, s.phi, dPhi, nil, nil); err != nil {
				return Result{}, err
			}
		}

		next := orbital.Add(1, s.phi, 1, dPhi)
		next.SetErrors(errs)
		next.Crop(cur)
		if dF != nil {
			s.fmat.Add(s.fmat, dF)
		}

		// Löwdin orthonormalization of the next generation, with the same
		// congruence transform applied to the matrix.
		U, err := orbital.Orthonormalize(cur, next)
		if err != nil {
			return Result{}, err
		}
		var tmp, rotated mat.Dense
		tmp.Mul(U, s.fmat)
		rotated.Mul(&tmp, U.T())
		s.fmat.CloneFrom(&rotated)

		// The next generation becomes current; operators bound to the set
		// pointer observe the rotation.
		s.phi.Replace(next)

		converged = s.converged(errO, propErr)
		update := IterationUpdate{
			Iter:          nIter,
			Energy:        energy,
			OrbitalError:  errO,
			TotalError:    errT,
			PropertyError: propErr,
			Precision:     cur,
			Converged:     converged,
			Elapsed:       time.Since(iterStart),
		}
		for _, o := range s.obs {
			o.IterationDone(update)
		}
		s.log.Info("scf iteration",
			logging.Int("iter", nIter),
			logging.Float64("energy", energy.Total),
			logging.Float64("err_o", errO),
			logging.Float64("err_t", errT),
			logging.Float64("property_err", propErr),
			logging.Float64("precision", cur))

		if converged {
			break
		}
	}

	// Final polish: one basis rotation an order of magnitude finer than the
	// last working precision, independent of the accelerator history.
	if nIter > 0 {
		if err := s.rotate(s.prec.Current()/10, s.phi, s.fmat); err != nil {
			return Result{}, err
		}
	}

	if converged {
		s.state = Converged
	} else {
		s.state = MaxIterReached
	}
	return Result{
		Converged:     converged,
		Iterations:    nIter,
		Energies:      s.energies,
		OrbitalError:  errO,
		PropertyError: propErr,
	}, nil
}

// helmholtzArgument assembles the right-hand side of the integral equation,
// Psi = V Phi + (Lambda - F) Phi, where V is the potential part of the
// effective operator and Lambda the diagonal the resolvents were built from.
// Only slots owned by this rank are assembled.
func (s *Solver) helmholtzArgument(prec float64, lam *mat.Dense) (*orbital.Set, error) {
	var coupling mat.Dense
	coupling.Sub(lam, s.fmat)
	rotPart := orbital.Rotate(&coupling, s.phi, prec)

	args := s.phi.ParamCopy()
	for i := 0; i < s.phi.Size(); i++ {
		if !comm.Owns(s.com, comm.OwnerOf(s.com, i)) {
			continue
		}
		pot, err := s.fock.ApplyPotential(s.phi.At(i))
		if err != nil {
			return nil, err
		}
		sum := orbital.AddOrbitals(1, pot, 1, rotPart.At(i))
		pot.Free()
		sum.Crop(prec)

		slot := args.At(i)
		if sum.HasReal() {
			slot.SetReal(sum.Real())
		}
		if sum.HasImag() {
			slot.SetImag(sum.Imag())
		}
	}
	return args, nil
}

// calcFockMatrixUpdate assembles the incremental Fock-matrix update from
// overlap corrections and the change of the two-electron potentials, instead
// of recomputing the full matrix:
//
//	dF = dV_n + dS1 F + dS2 Lambda + (F_np1 - F_n)
//
// where dS1 = <dPhi|Phi>, dS2 = <Phi+dPhi|dPhi>, dV_n is the explicitly
// computed nuclear block, and F_n, F_np1 are the nuclear-free two-electron
// matrices at the current and next potentials. The (dPhi, dPhi) block of
// F_np1 is dropped; the final explicit symmetrization absorbs the resulting
// asymmetry, which vanishes as the update shrinks.
func (s *Solver) calcFockMatrixUpdate(prec float64, dPhi *orbital.Set, lam *mat.Dense) (*mat.Dense, error) {
	if s.fockNp1 == nil || s.phiNp1 == nil {
		return nil, apperrors.NewSolverError(
			"fock matrix update requires the next-generation operator binding")
	}
	phi := s.phi
	n := phi.Size()
	phiNp1 := orbital.Add(1, phi, 1, dPhi)

	dS1 := orbital.Overlap(dPhi, phi)
	dS2 := orbital.Overlap(phiNp1, dPhi)

	// The nuclear block is cheap and always computed directly.
	dVn := mat.NewDense(n, n, nil)
	if nuc := s.fock.Nuclear(); nuc != nil {
		M, err := operator.Matrix(nuc, phiNp1, dPhi)
		if err != nil {
			return nil, err
		}
		dVn = M
	}

	// Nuclear-free two-electron matrix at the current potentials.
	redN := operator.NewFock(phi, nil, nil, s.fock.Coulomb(), s.fock.Exchange(), s.fock.XC())
	if err := redN.Setup(prec); err != nil {
		return nil, err
	}
	fN, err := redN.PotentialMatrix(phiNp1, phi)
	if err != nil {
		return nil, err
	}

	// The next-generation potentials require orthonormal orbitals; the
	// non-orthogonal form is restored afterwards for the remaining stages.
	s.phiNp1.Replace(phiNp1)
	if _, err := orbital.Orthonormalize(prec, s.phiNp1); err != nil {
		return nil, err
	}
	redNp1 := operator.NewFock(s.phiNp1, nil, nil,
		s.fockNp1.Coulomb(), s.fockNp1.Exchange(), s.fockNp1.XC())
	s.fockNp1.Clear()
	if err := redNp1.Setup(prec); err != nil {
		return nil, err
	}
	f1, err := redNp1.PotentialMatrix(phi, phi)
	if err != nil {
		return nil, err
	}
	f2, err := redNp1.PotentialMatrix(phi, dPhi)
	if err != nil {
		return nil, err
	}
	var fNp1 mat.Dense
	fNp1.Add(f1, f2)
	fNp1.Add(&fNp1, f2.T())

	s.phiNp1.Replace(orbital.Add(1, phi, 1, dPhi))

	// dF = dV_n + dS1 F + dS2 Lambda + (F_np1 - F_n), then symmetrize.
	var t1, t2, diffF mat.Dense
	t1.Mul(dS1, s.fmat)
	t2.Mul(dS2, lam)
	diffF.Sub(&fNp1, fN)

	dF := mat.NewDense(n, n, nil)
	dF.Add(dVn, &t1)
	dF.Add(dF, &t2)
	dF.Add(dF, &diffF)

	var sym mat.Dense
	sym.CloneFrom(dF.T())
	dF.Add(dF, &sym)
	dF.Scale(0.5, dF)
	return dF, nil
}
