// Package batch analyses many input files concurrently with a bounded
// errgroup. Results come back in input order and a failing file never
// cancels its siblings.
package batch
