// Command forgedemo runs a synthetic frame loop against the headless
// backend and prints per-frame statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/gogpu/forge"
	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/device/headless"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/resource"
)

func main() {
	var (
		frames    = flag.Int("frames", 60, "number of frames to run")
		producers = flag.Int("producers", 4, "concurrent producer goroutines")
		draws     = flag.Int("draws", 256, "draw entries per producer per frame")
		verbose   = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		forge.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	p, err := forge.New(forge.WithDevice(headless.New()), forge.WithProducers(*producers))
	if err != nil {
		log.Fatalf("create pipeline: %v", err)
	}
	defer p.Close()

	shader, err := p.CreateShader(resource.ShaderDesc{
		Label: "demo",
		WGSL:  demoShader,
	})
	if err != nil {
		log.Fatalf("create shader: %v", err)
	}
	surface, err := p.CreateSurface(resource.SurfaceDesc{
		Label:  "window",
		Width:  1280,
		Height: 720,
	})
	if err != nil {
		log.Fatalf("create surface: %v", err)
	}
	mesh, err := p.CreateMesh(quadMesh())
	if err != nil {
		log.Fatalf("create mesh: %v", err)
	}

	for frameNo := 0; frameNo < *frames; frameNo++ {
		var wg sync.WaitGroup
		for i := 0; i < *producers; i++ {
			wg.Add(1)
			go func(layer uint8) {
				defer wg.Done()
				buf := p.BeginFrame()
				defer p.EndFrame(buf)
				for j := 0; j < *draws; j++ {
					depth := float32(math.Abs(math.Sin(float64(frameNo+j) * 0.01)))
					err := buf.Append(command.Entry{
						Key: command.MakeSortKey(layer, uint16(j%7), depth),
						State: command.PipelineState{
							Shader: shader,
							Target: surface,
						},
						Draw: command.DrawParams{Mesh: mesh},
					})
					if err != nil {
						log.Printf("append: %v", err)
						return
					}
				}
			}(uint8(i))
		}
		wg.Wait()

		st, err := p.Advance()
		if err != nil {
			log.Fatalf("advance frame %d: %v", frameNo, err)
		}
		if frameNo%10 == 0 {
			fmt.Printf("frame %3d: %5d draws, %3d state changes, %d skipped\n",
				frameNo, st.Device.DrawCalls, st.Device.StateChanges, st.Device.Skipped)
		}
	}

	ins := p.Inspect()
	fmt.Printf("live resources: %d shaders, %d surfaces, %d meshes (%d bytes)\n",
		ins.Live[handle.KindShader], ins.Live[handle.KindSurface],
		ins.Live[handle.KindMesh], ins.LiveBytes)
}

// quadMesh builds a unit quad with interleaved position and uv.
func quadMesh() resource.MeshDesc {
	verts := make([]byte, 6*16)
	return resource.MeshDesc{
		Label:      "quad",
		VertexData: verts,
		Layout:     resource.VertexLayout{ArrayStride: 16},
	}
}

const demoShader = `
@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.5, 0.0, 1.0);
}
`
