// Package fitness estimates per-strain and per-gene fitness from
// competitive pooled-mutant barcode sequencing.
//
// The input is a gene annotation table, a wide table of barcode read
// counts (one column per sequenced sample), and a sample metadata
// table that marks the time-zero reference samples for each condition.
// The pipeline joins the three tables, filters strains and genes by
// reference coverage, computes log2 fitness ratios with a
// variance-stabilizing pseudocount, removes positional and
// scaffold-level bias, and calls significance with a moderated
// t-like statistic.
//
// The stages run strictly in order; see Run in pipeline.go for the
// toplevel driver.
package fitness
