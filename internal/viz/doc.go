// Package viz renders membrane runs in the terminal.
//
// [Dashboard] is a Bubble Tea program that follows a running simulation
// through the sample stream of its recorder:
//
//	q, ctrl+c  cancel the run and quit
//	p          toggle the force error panel
//
// [Summary] and [RenderMesh] produce static views of a stored run for the
// show command.
package viz
