// Package matrix expands a declarative test matrix into independent jobs.
//
// A Spec is a list of job families. A family either declares axes, whose
// Cartesian product yields one job per combination, or declares none and
// yields a single feature-gated job. Environment axes contribute packages to
// the job's environment reference; feature axes contribute feature flags.
//
//	families:
//	  - name: versioned-chain
//	    axes:
//	      - name: chain
//	        kind: environment
//	        variants: [gaia@v7.1.0, gaia@v8.0.0]
//	  - name: ordered-channel
//	    environment: [gaia@v6.0.4-ordered]
//	    features: [ordered]
//	    filter: "tag:ordered"
//
// expands to
//
//	versioned-chain/chain=gaia@v7.1.0   env gaia@v7.1.0
//	versioned-chain/chain=gaia@v8.0.0   env gaia@v8.0.0
//	ordered-channel                     env gaia@v6.0.4-ordered  features [ordered]
//
// Expansion is deterministic and bounded by Spec.MaxJobs. Every failure is an
// InvalidSpecError matching ErrInvalidSpec.
package matrix
