// Package forge is a multi-threaded rendering front end over a
// single-threaded graphics device.
//
// # Overview
//
// forge splits rendering into a front end that any number of goroutines
// drive and a back end that exactly one goroutine drains. Producers
// allocate opaque generational handles for textures, meshes, shaders,
// render targets and surfaces; resource creation, update and
// destruction are deferred requests applied at the frame boundary. Draw
// submissions go into per-producer command buffers that are merged,
// stably sorted by a layer/material/depth key, and replayed against the
// backend device once per frame.
//
// A minimal frame loop:
//
//	p, err := forge.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	surface, _ := p.CreateSurface(resource.SurfaceDesc{Label: "main", Width: 800, Height: 600})
//	shader, _ := p.CreateShader(resource.ShaderDesc{Label: "flat", WGSL: flatWGSL})
//	mesh, _ := p.CreateMesh(quadMesh())
//
//	for running {
//		buf := p.BeginFrame()
//		buf.Append(command.Entry{
//			Key:   command.MakeSortKey(0, 1, 0.5),
//			State: command.PipelineState{Shader: shader, Target: surface},
//			Draw:  command.DrawParams{Mesh: mesh},
//		})
//		p.EndFrame(buf)
//
//		if _, err := p.Advance(); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// # Backends
//
// Backends register themselves on import. The headless backend
// (device/headless) executes the frame protocol without a GPU and is
// the default in tests and servers. The gpu backend (device/gpu) runs
// on gogpu/wgpu's HAL and activates when a shared device provider is
// installed with gpu.SetProvider.
//
// # Concurrency
//
// Handle allocation, deferred updates, destroys and frame submission
// are safe from any goroutine. One owner goroutine calls Advance at the
// frame boundary after every producer has called EndFrame; the backend
// device is only ever touched from that goroutine.
package forge
