// Package outcome contains the curriculum model: programs, courses, course
// learning outcomes (CLOs), program learning outcomes (PLOs) and the
// CLO↔PLO contribution mappings between them.
//
// The package defines:
//
//   - Entities: Program, Course, Outcome, ProgramOutcome, Mapping
//   - Value objects: ContributionTier, TierWeights, MappingSource
//   - Repository interfaces: Repository, MappingRepository
//
// # Architectural principles
//
//  1. Zero external dependencies, standard library only
//  2. Dependency inversion: interfaces live here, implementations in infrastructure/persistence
//  3. Storage is external; every entity is loaded fresh per computation
//
// # Contribution tiers
//
// A mapping carries one of Major, Neutral, Low or None. Tiers are either
// typed in by curriculum staff (SourceManual), imported from a mapping
// spreadsheet (SourceImported) or inferred by the mapping scorer
// (SourceInferred). Inferred tiers never replace manual or imported ones:
//
//	if existing.Source.IsAuthoritative() {
//	    continue
//	}
//
// Only Major, Neutral and Low contribute to program attainment, weighted by
// TierWeights:
//
//	w := mapping.Tier.Weight(outcome.DefaultTierWeights())
//
// # Repositories
//
// Repository serves read access to the curriculum; MappingRepository owns
// mapping writes. Missing rows are reported with the shared ErrXNotFound
// values so callers can use shared.IsNotFound.
package outcome
