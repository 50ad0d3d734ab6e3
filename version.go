// gomrstats - streaming average and relative frequency map reduce jobs
//
// Each job is a Step with Mapper, Reducer and (optionally) Combiner stages
// that speak line oriented stdin/stdout. A Runner executes a single stage as a
// hadoop streaming task or submits the job, and the local package runs the
// same steps standalone with parallel map and reduce units.
package gomrstats

const VERSION = "2.0.0"
