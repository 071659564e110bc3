package glgpu

const terrainVertexShader = `#version 410 core

layout(location = 0) in vec3 aPosition;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in vec2 aColormapUV;
layout(location = 3) in vec2 aDetailUV;

uniform mat4 uViewProj;

out vec2 vColormapUV;

void main() {
    vColormapUV = aColormapUV;
    gl_Position = uViewProj * vec4(aPosition, 1.0);
}
`

// The lightmap is premultiplied by the light colors, the material only
// adds detail on top of the colormap.
const terrainFragmentShader = `#version 410 core

in vec2 vColormapUV;

uniform sampler2D uColormap;
uniform sampler2D uLightmap;
uniform sampler2D uMaterial;
uniform int uUseMaterial;
uniform int uUseLightmap;
uniform float uDetailScale;
uniform int uWireframe;

out vec4 FragColor;

void main() {
    if (uWireframe == 1) {
        FragColor = vec4(0.1, 0.9, 0.2, 1.0);
        return;
    }

    vec3 color = texture(uColormap, vColormapUV).rgb;
    if (uUseMaterial == 1) {
        vec3 detail = texture(uMaterial, vColormapUV * uDetailScale).rgb;
        color *= detail * 2.0;
    }
    if (uUseLightmap == 1) {
        color *= texture(uLightmap, vColormapUV).rgb;
    }
    FragColor = vec4(color, 1.0);
}
`
